package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/config"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/store"
	"plcmotion/pkg/trace"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":7480", "ws://127.0.0.1:7480/ws"},
		{"127.0.0.1:7480", "ws://127.0.0.1:7480/ws"},
		{"motion.local:80", "ws://motion.local:80/ws"},
	}
	for _, tt := range tests {
		if got := streamURL(tt.addr); got != tt.want {
			t.Errorf("streamURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestMoveDemo(t *testing.T) {
	var out bytes.Buffer
	samples, err := runMoveDemo(&out, demoOptions{quiet: true})
	if err != nil {
		t.Fatalf("move demo: %v\n%s", err, out.String())
	}
	for _, want := range []string{"moveAbs1 start", "moveAbs1 complete", "moveAbs2 complete"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	last := samples[len(samples)-1]
	if math.Abs(last.Cmd-1000) > 1e-3 {
		t.Errorf("final position = %v, want 1000", last.Cmd)
	}
	sum := trace.Summarize(samples, 1e-3)
	if sum.MaxVel > 400+1e-6 || sum.MaxVel < 399 {
		t.Errorf("peak velocity = %v, want 400", sum.MaxVel)
	}
}

func TestMoveDemoPrintsCycles(t *testing.T) {
	var out bytes.Buffer
	if _, err := runMoveDemo(&out, demoOptions{}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out.String(), "time:0.00000000,\tposition:") {
		t.Errorf("unexpected first line: %q", strings.SplitN(out.String(), "\n", 2)[0])
	}
}

func TestMoveDemoGivesUp(t *testing.T) {
	if _, err := runMoveDemo(&bytes.Buffer{}, demoOptions{quiet: true, maxTicks: 10}); err == nil {
		t.Error("demo finished in 10 cycles")
	}
}

func TestHomingDemo(t *testing.T) {
	var out bytes.Buffer
	samples, err := runHomingDemo(&out, demoOptions{quiet: true})
	if err != nil {
		t.Fatalf("homing demo: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "homing complete") {
		t.Errorf("output:\n%s", out.String())
	}
	// the search passes the switch at 50 units
	peak := 0.0
	for _, s := range samples {
		peak = math.Max(peak, s.Cmd)
	}
	if peak < 50 {
		t.Errorf("search stopped at %v, before the switch", peak)
	}
}

func TestDemoOutputs(t *testing.T) {
	samples, err := runMoveDemo(&bytes.Buffer{}, demoOptions{quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	opts := demoOptions{csv: filepath.Join(dir, "move.csv"), plot: filepath.Join(dir, "move.png")}
	var out bytes.Buffer
	if err := writeDemoOutputs(&out, "move", samples, opts); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(opts.csv)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	back, err := trace.ReadCSV(f)
	if err != nil || len(back) != len(samples) {
		t.Errorf("csv: %d samples, %v", len(back), err)
	}
	if st, err := os.Stat(opts.plot); err != nil || st.Size() == 0 {
		t.Errorf("plot: %v", err)
	}
}

func testSettings(t *testing.T) *config.AutosaveConfig {
	t.Helper()
	cfg := config.Default()
	cfg.API.Addr = "127.0.0.1:0"
	cfg.Store.Path = filepath.Join(t.TempDir(), "motion.db")
	second := config.DefaultAxis(2)
	second.Homing.Mode = int(axis.HomingMode7)
	second.Homing.VelSearch = 20
	second.Homing.VelRegression = 1
	second.Homing.Acc = 50
	second.Homing.InputBit = 3
	second.Homing.SimSwitch = demoSwitchRaw
	cfg.Axes = append(cfg.Axes, second)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return config.NewAutosaveConfig(&cfg, "")
}

func TestNewKernel(t *testing.T) {
	settings := testSettings(t)
	cfg := settings.Config()

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.SaveHomePosition(1, 4.5); err != nil {
		t.Fatal(err)
	}
	st.Close()

	k, err := newKernel(settings)
	if err != nil {
		t.Fatal(err)
	}
	defer k.close()

	if n := len(k.sched.Axes()); n != 2 {
		t.Fatalf("axes = %d, want 2", n)
	}
	if got := k.sched.Axis(1).HomePosition(); got != 4.5 {
		t.Errorf("restored home = %v, want 4.5", got)
	}
	if k.sched.Axis(2).HomingInfo().Signal == nil || k.inputs.Endstop(3) == nil {
		t.Error("homing input not wired")
	}
	if k.sched.Axis(2).Name() != "axis2" {
		t.Errorf("name = %q", k.sched.Axis(2).Name())
	}
}

func TestNewKernelDuplicateInput(t *testing.T) {
	settings := testSettings(t)
	cfg := settings.Config()
	third := cfg.Axes[1]
	third.ID, third.Name = 3, "axis3"
	cfg.Axes = append(cfg.Axes, third)
	if _, err := newKernel(config.NewAutosaveConfig(&cfg, "")); err == nil {
		t.Error("two axes shared homing input 3")
	}
}

func runReactor(t *testing.T, k *kernel) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		k.reactor.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestApplyRangeLimit(t *testing.T) {
	k, err := newKernel(testSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	defer k.close()
	runReactor(t, k)

	rl := config.RangeLimitConfig{SwLimitPositive: true, LimitPositive: 10}
	if err := k.ApplyRangeLimit(1, rl); err != nil {
		t.Fatal(err)
	}
	var got axis.RangeLimitInfo
	k.reactor.Call(context.Background(), func() error {
		got = k.sched.Axis(1).RangeLimitInfo()
		return nil
	})
	if !got.SwLimitPositive || got.LimitPositive != 10 {
		t.Errorf("range limit = %+v", got)
	}
	if err := k.ApplyRangeLimit(9, rl); err != errors.AxisNotExist {
		t.Errorf("unknown axis = %v", err)
	}
}

func TestEmergencyStopReachesAxes(t *testing.T) {
	k, err := newKernel(testSettings(t))
	if err != nil {
		t.Fatal(err)
	}
	defer k.close()
	runReactor(t, k)

	k.safety.EmergencyStop("test")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var codes []errors.Code
		k.reactor.Call(context.Background(), func() error {
			for _, a := range k.sched.Axes() {
				codes = append(codes, a.ErrorCode())
			}
			return nil
		})
		if codes[0] == errors.SystemEmgs && codes[1] == errors.SystemEmgs {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("axes not stopped")
}

func TestKernelRun(t *testing.T) {
	settings := testSettings(t)
	k, err := newKernel(settings)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := k.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if k.reactor.Ticks() == 0 {
		t.Error("reactor never ticked")
	}

	st, err := store.Open(settings.Config().Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	runs, err := st.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].EndedAt == nil || runs[0].Version != version {
		t.Errorf("runs = %+v", runs)
	}
}

func TestConfCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	}()

	rootCmd.SetArgs([]string{"mkconf", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"mkconf", path})
	if err := rootCmd.Execute(); err == nil {
		t.Error("mkconf overwrote an existing file")
	}

	out.Reset()
	rootCmd.SetArgs([]string{"conf", "-c", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "frequency: 1000") {
		t.Errorf("conf output:\n%s", out.String())
	}

	out.Reset()
	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "motiond dev\n" {
		t.Errorf("version = %q", out.String())
	}
}

func TestTokenCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte("api:\n  jwt_secret: 0123456789abcdef0123\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	}()
	rootCmd.SetArgs([]string{"token", "-c", path, "--subject", "tester"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if parts := strings.Split(strings.TrimSpace(out.String()), "."); len(parts) != 3 {
		t.Errorf("token = %q", out.String())
	}
}
