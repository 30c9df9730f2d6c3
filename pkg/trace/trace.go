// Package trace records per-tick axis samples and turns them into
// summaries, spectra, CSV files and plots.
package trace

import (
	"sync"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/pool"
	"plcmotion/pkg/reactor"
)

// Sample is the state of one axis at one tick.
type Sample struct {
	T   float64 // seconds since the first sample
	Cmd float64 // commanded position
	Act float64 // actual position
	Vel float64 // commanded velocity
	Acc float64 // commanded acceleration
	Lag float64 // Cmd - Act
}

// Recorder samples one axis every tick. Hook runs on the reactor
// goroutine; Samples may be called from any goroutine.
type Recorder struct {
	axis   *axis.Axis
	period float64
	max    int

	mu      sync.Mutex
	samples []Sample
	start   uint32
	started bool
	paused  bool
}

// NewRecorder records a for at most max samples. A max of zero keeps
// every sample.
func NewRecorder(a *axis.Axis, period float64, max int) *Recorder {
	return &Recorder{axis: a, period: period, max: max}
}

// Record appends the current state of the axis.
func (r *Recorder) Record(tick uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused || (r.max > 0 && len(r.samples) >= r.max) {
		return
	}
	if !r.started {
		r.start, r.started = tick, true
	}
	cmd, act := r.axis.CmdPosition(), r.axis.ActPosition()
	r.samples = append(r.samples, Sample{
		T:   float64(tick-r.start) * r.period,
		Cmd: cmd,
		Act: act,
		Vel: r.axis.CmdVelocity(),
		Acc: r.axis.CmdAcceleration(),
		Lag: cmd - act,
	})
}

// Hook returns a reactor tick hook calling Record.
func (r *Recorder) Hook() reactor.TickHook {
	return r.Record
}

// Pause stops recording until Resume.
func (r *Recorder) Pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

// Resume continues recording.
func (r *Recorder) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// Reset discards every sample.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.samples, r.started = nil, false
	r.mu.Unlock()
}

// Len returns the number of samples.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Samples returns a copy of the samples.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Period returns the sample period in seconds.
func (r *Recorder) Period() float64 { return r.period }

// column extracts one field of every sample.
func column(samples []Sample, f func(Sample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = f(s)
	}
	return out
}

// pooledColumn is column backed by pool. The caller returns it with
// pool.PutFloat64Slice.
func pooledColumn(samples []Sample, f func(Sample) float64) []float64 {
	out := pool.GetFloat64Slice(len(samples))
	for i, s := range samples {
		out[i] = f(s)
	}
	return out
}
