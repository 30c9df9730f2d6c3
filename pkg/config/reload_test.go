package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type recordingApplier struct {
	applied map[int32]RangeLimitConfig
	fail    bool
}

func (r *recordingApplier) ApplyRangeLimit(id int32, rl RangeLimitConfig) error {
	if r.fail {
		return fmt.Errorf("axis %d busy", id)
	}
	if r.applied == nil {
		r.applied = make(map[int32]RangeLimitConfig)
	}
	r.applied[id] = rl
	return nil
}

func twoAxes() *Config {
	c := Default()
	c.Axes = []AxisConfig{DefaultAxis(1), DefaultAxis(2)}
	return &c
}

func TestDetectChanges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   []Change
	}{
		{"none", func(c *Config) {}, nil},
		{"range limit", func(c *Config) {
			c.Axes[1].RangeLimit.LimitPositive = 10
		}, []Change{{Section: "axes.2.range_limit", Axis: 2, Live: true}}},
		{"motion limit", func(c *Config) {
			c.Axes[0].MotionLimit.VelLimit = 50
		}, []Change{{Section: "axes.1", Axis: 1}}},
		{"both", func(c *Config) {
			c.Axes[0].RangeLimit.SwLimitNegative = true
			c.Axes[0].Control.Kp = 3
		}, []Change{{Section: "axes.1", Axis: 1}, {Section: "axes.1.range_limit", Axis: 1, Live: true}}},
		{"added axis", func(c *Config) {
			c.Axes = append(c.Axes, DefaultAxis(3))
		}, []Change{{Section: "axes.3", Axis: 3}}},
		{"removed axis", func(c *Config) {
			c.Axes = c.Axes[:1]
		}, []Change{{Section: "axes.2", Axis: 2}}},
		{"top level", func(c *Config) {
			c.Frequency = 250
			c.API.Addr = ":1"
		}, []Change{{Section: "api"}, {Section: "frequency"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := twoAxes()
			next := twoAxes()
			tt.mutate(next)
			got := DetectChanges(cur, next)
			if len(got) != len(tt.want) {
				t.Fatalf("changes = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("change %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNeedsRestart(t *testing.T) {
	changes := []Change{{Section: "axes.1.range_limit", Live: true}, {Section: "api"}}
	got := NeedsRestart(changes)
	if len(got) != 1 || got[0] != "api" {
		t.Errorf("NeedsRestart = %v", got)
	}
}

func TestReloadWithConfig(t *testing.T) {
	app := &recordingApplier{}
	rm := NewReloadManager(app, twoAxes(), "")

	var completed []ReloadResult
	rm.OnReloadComplete(func(r []ReloadResult) { completed = r })

	next := twoAxes()
	next.Axes[0].RangeLimit = RangeLimitConfig{SwLimitPositive: true, LimitPositive: 5}
	next.Monitor.RateHz = 1

	results, err := rm.ReloadWithConfig(next)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(results) != 2 || len(completed) != 2 {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		switch r.Section {
		case "axes.1.range_limit":
			if !r.WasReloaded || r.Error != nil {
				t.Errorf("range limit result = %+v", r)
			}
		case "monitor":
			if r.WasReloaded {
				t.Error("monitor change should need a restart")
			}
		default:
			t.Errorf("unexpected section %q", r.Section)
		}
	}
	if app.applied[1].LimitPositive != 5 {
		t.Errorf("applied = %+v", app.applied)
	}

	cur := rm.GetCurrentConfig()
	if cur.Axes[0].RangeLimit.LimitPositive != 5 {
		t.Error("live change not taken over")
	}
	if cur.Monitor.RateHz != 10 {
		t.Error("restart-only change should not be taken over")
	}

	// Same config again: only the pending restart remains
	results, _ = rm.ReloadWithConfig(next)
	if len(results) != 1 || results[0].Section != "monitor" {
		t.Errorf("second reload = %+v", results)
	}
}

func TestReloadApplyError(t *testing.T) {
	rm := NewReloadManager(&recordingApplier{fail: true}, twoAxes(), "")
	next := twoAxes()
	next.Axes[1].RangeLimit.LimitNegative = -3
	results, err := rm.ReloadWithConfig(next)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Error == nil || results[0].WasReloaded {
		t.Errorf("results = %+v", results)
	}
}

func TestReloadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("axes:\n  - id: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	app := &recordingApplier{}
	rm := NewReloadManager(app, cfg, path)
	rm.SetDebounceTime(0)

	content := "axes:\n  - id: 1\n    range_limit:\n      sw_limit_negative: true\n      limit_negative: -7\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	results, err := rm.ReloadFromFile()
	if err != nil {
		t.Fatalf("ReloadFromFile: %v", err)
	}
	if len(results) != 1 || !results[0].WasReloaded {
		t.Fatalf("results = %+v", results)
	}
	if rl := app.applied[1]; !rl.SwLimitNegative || rl.LimitNegative != -7 {
		t.Errorf("applied = %+v", rl)
	}
}

func TestWatchRequiresPath(t *testing.T) {
	rm := NewReloadManager(nil, twoAxes(), "")
	if err := rm.Watch(); err == nil {
		t.Error("expected error without a path")
	}
}
