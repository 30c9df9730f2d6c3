// Unit tests for the metrics primitives
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"math"
	"strings"
	"sync"
	"testing"
)

// TestCounterWithLabels tests counter increments per label set
func TestCounterWithLabels(t *testing.T) {
	c := NewCounter("motion_estops_total", "Emergency stops")

	x := Labels{"axis": "1", "code": "SOFTWAREEMGS"}
	y := Labels{"axis": "2", "code": "POSLAGOVERLIMIT"}

	c.Inc(x)
	c.Inc(x)
	c.Add(y, 5)

	if v := c.Get(x); v != 2 {
		t.Errorf("expected axis 1 count 2, got %d", v)
	}
	if v := c.Get(y); v != 5 {
		t.Errorf("expected axis 2 count 5, got %d", v)
	}
	if v := c.Get(Labels{"axis": "3"}); v != 0 {
		t.Errorf("expected unseen series 0, got %d", v)
	}
	if c.Name() != "motion_estops_total" || c.Help() != "Emergency stops" || c.Type() != TypeCounter {
		t.Errorf("descriptor %s %q %s", c.Name(), c.Help(), c.Type())
	}
}

// TestCounterConcurrency tests counter thread safety
func TestCounterConcurrency(t *testing.T) {
	c := NewCounter("concurrent_counter", "Test concurrent access")
	var wg sync.WaitGroup

	numGoroutines := 50
	incsPerGoroutine := 1000

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < incsPerGoroutine; j++ {
				c.Inc(nil)
			}
		}()
	}
	wg.Wait()

	expected := uint64(numGoroutines * incsPerGoroutine)
	if v := c.Get(nil); v != expected {
		t.Errorf("expected %d, got %d", expected, v)
	}
}

// TestGaugeBasic tests gauge set and arithmetic
func TestGaugeBasic(t *testing.T) {
	g := NewGauge("motion_axis_command_position", "Command position")

	if v := g.Get(nil); v != 0 {
		t.Errorf("expected initial value 0, got %f", v)
	}

	tests := []struct {
		op   func()
		want float64
	}{
		{func() { g.Set(nil, 42.5) }, 42.5},
		{func() { g.Add(nil, 7.5) }, 50},
		{func() { g.Add(nil, -10) }, 40},
		{func() { g.Inc(nil) }, 41},
		{func() { g.Dec(nil) }, 40},
		{func() { g.SetBool(nil, true) }, 1},
		{func() { g.SetBool(nil, false) }, 0},
		{func() { g.Set(nil, -0.25) }, -0.25},
	}
	for i, tt := range tests {
		tt.op()
		if v := g.Get(nil); v != tt.want {
			t.Errorf("step %d: got %f, want %f", i, v, tt.want)
		}
	}
}

// TestGaugeConcurrency tests gauge thread safety
func TestGaugeConcurrency(t *testing.T) {
	g := NewGauge("concurrent_gauge", "Test concurrent access")
	var wg sync.WaitGroup

	numGoroutines := 50
	opsPerGoroutine := 1000

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				g.Inc(nil)
				g.Dec(nil)
				g.Add(nil, 2)
			}
		}()
	}
	wg.Wait()

	expected := float64(numGoroutines * opsPerGoroutine * 2)
	if v := g.Get(nil); v != expected {
		t.Errorf("expected %f, got %f", expected, v)
	}
}

// TestHistogramBuckets tests cumulative bucket counting
func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("tick_seconds", "Tick duration", []float64{1.0, 0.1, 0.5, 0.01, 0.05})

	for _, v := range []float64{0.005, 0.01, 0.02, 0.08, 0.3, 0.7, 2.0} {
		h.Observe(nil, v)
	}

	snap := h.GetSnapshot(nil)
	if snap.Count != 7 {
		t.Errorf("expected count 7, got %d", snap.Count)
	}
	expectedSum := 0.005 + 0.01 + 0.02 + 0.08 + 0.3 + 0.7 + 2.0
	if math.Abs(snap.Sum-expectedSum) > 1e-9 {
		t.Errorf("expected sum %f, got %f", expectedSum, snap.Sum)
	}

	want := map[float64]uint64{0.01: 2, 0.05: 3, 0.1: 4, 0.5: 5, 1.0: 6}
	for bound, n := range want {
		if snap.Buckets[bound] != n {
			t.Errorf("bucket %g: got %d, want %d", bound, snap.Buckets[bound], n)
		}
	}

	if empty := h.GetSnapshot(Labels{"axis": "9"}); empty.Count != 0 || len(empty.Buckets) != 0 {
		t.Errorf("unseen series snapshot %+v", empty)
	}
}

// TestExponentialBuckets tests exponential bucket generation
func TestExponentialBuckets(t *testing.T) {
	buckets := ExponentialBuckets(1e-5, 2, 4)
	want := []float64{1e-5, 2e-5, 4e-5, 8e-5}
	for i := range want {
		if math.Abs(buckets[i]-want[i]) > 1e-12 {
			t.Errorf("bucket %d: got %g, want %g", i, buckets[i], want[i])
		}
	}
	if len(DefaultBuckets()) != 11 {
		t.Errorf("default buckets %v", DefaultBuckets())
	}
}

// TestRegistry tests registration and duplicate detection
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("my_counter", "A counter")
	if err := r.Register(c); err != nil {
		t.Fatalf("failed to register counter: %v", err)
	}
	if err := r.Register(NewGauge("my_counter", "clash")); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if r.Get("my_counter") != c || r.Get("missing") != nil {
		t.Error("Get returned the wrong metric")
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRegister did not panic on duplicate")
		}
	}()
	r.MustRegister(c)
}

// TestRegistryGather tests Prometheus text output
func TestRegistryGather(t *testing.T) {
	r := NewRegistry()

	c := NewCounter("motion_ticks_total", "Ticks run")
	c.Add(nil, 100)
	g := NewGauge("motion_axis_status", "Axis status")
	g.Set(Labels{"axis": "2"}, 3)
	g.Set(Labels{"axis": "1"}, 1)
	h := NewHistogram("motion_tick_duration_seconds", "Tick duration", []float64{0.1, 0.5, 1.0})
	h.Observe(nil, 0.05)
	h.Observe(nil, 2.0)
	r.MustRegister(c, g, h)

	output := r.Gather()

	for _, want := range []string{
		"# HELP motion_ticks_total Ticks run\n# TYPE motion_ticks_total counter\nmotion_ticks_total 100\n",
		"# TYPE motion_axis_status gauge\n" +
			`motion_axis_status{axis="1"} 1` + "\n" +
			`motion_axis_status{axis="2"} 3` + "\n",
		`motion_tick_duration_seconds_bucket{le="0.1"} 1`,
		`motion_tick_duration_seconds_bucket{le="1"} 1`,
		`motion_tick_duration_seconds_bucket{le="+Inf"} 2`,
		"motion_tick_duration_seconds_sum 2.05",
		"motion_tick_duration_seconds_count 2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q\n%s", want, output)
		}
	}

	if strings.Index(output, "motion_ticks_total") > strings.Index(output, "motion_axis_status") {
		t.Error("metrics not in registration order")
	}
}

// TestLabels tests key canonicalisation and escaping
func TestLabels(t *testing.T) {
	a := Labels{"b": "2", "a": "1", "c": "3"}
	b := Labels{"c": "3", "a": "1", "b": "2"}
	if a.Key() != "a=1,b=2,c=3" || a.Key() != b.Key() {
		t.Errorf("keys %q %q", a.Key(), b.Key())
	}
	if Labels(nil).String() != "" || (Labels{}).Key() != "" {
		t.Error("empty labels should render empty")
	}
	got := Labels{"name": "say \"hi\"\n\\"}.String()
	if got != `{name="say \"hi\"\n\\"}` {
		t.Errorf("escaped labels = %s", got)
	}
}

// TestNilLabels tests that nil and empty labels share a series
func TestNilLabels(t *testing.T) {
	c := NewCounter("nil_labels_counter", "Test nil labels")
	c.Inc(nil)
	c.Inc(Labels{})
	if v := c.Get(nil); v != 2 {
		t.Errorf("expected 2, got %d", v)
	}
}

// BenchmarkGaugeSet benchmarks the per tick gauge update
func BenchmarkGaugeSet(b *testing.B) {
	g := NewGauge("bench_gauge", "Benchmark gauge")
	labels := Labels{"axis": "1"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Set(labels, float64(i))
	}
}

// BenchmarkHistogramObserve benchmarks histogram observe
func BenchmarkHistogramObserve(b *testing.B) {
	h := NewHistogram("bench_histogram", "Benchmark histogram", DefaultBuckets())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.Observe(nil, float64(i%10)/10.0)
	}
}
