// Motion kernel metrics
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	goruntime "runtime"
	"strconv"
	"time"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/scheduler"
)

// MotionMetrics holds the metrics of one motion kernel. It observes axis
// events and reactor ticks, and samples axis state from a tick hook.
type MotionMetrics struct {
	// Axis state, sampled
	CmdPosition *Gauge
	CmdVelocity *Gauge
	ActPosition *Gauge
	AxisStatus  *Gauge
	QueueDepth  *Gauge
	AxisPowered *Gauge
	AxisError   *Gauge

	// Axis events
	EmergencyStops *Counter
	PowerChanges   *Counter
	HomingDone     *Counter

	// Tick loop
	Ticks        *Counter
	Overruns     *Counter
	TickDuration *Histogram

	// Process
	Uptime       *Gauge
	GoGoroutines *Gauge
	GoMemoryHeap *Gauge

	startTime time.Time
	registry  *Registry
}

// NewMotionMetrics creates and registers the kernel metrics.
func NewMotionMetrics() *MotionMetrics {
	m := &MotionMetrics{
		startTime: time.Now(),
		registry:  NewRegistry(),

		CmdPosition: NewGauge("motion_axis_command_position", "Command position in user units"),
		CmdVelocity: NewGauge("motion_axis_command_velocity", "Command velocity in units per second"),
		ActPosition: NewGauge("motion_axis_actual_position", "Drive feedback position in system units"),
		AxisStatus:  NewGauge("motion_axis_status", "Axis status (0=disabled 1=standstill 2=homing 3=discrete 4=continuous 5=synchronized 6=stopping 7=error_stop)"),
		QueueDepth:  NewGauge("motion_axis_queue_depth", "Commands in the axis queue, the active one included"),
		AxisPowered: NewGauge("motion_axis_powered", "Axis power state (1=on, 0=off)"),
		AxisError:   NewGauge("motion_axis_error_code", "Latched axis error code, 0 when healthy"),

		EmergencyStops: NewCounter("motion_emergency_stops_total", "Emergency stops per axis and code"),
		PowerChanges:   NewCounter("motion_power_changes_total", "Completed power handshakes per axis and state"),
		HomingDone:     NewCounter("motion_homing_completed_total", "Completed homing sequences per axis"),

		Ticks:        NewCounter("motion_ticks_total", "Scheduler ticks run by the reactor"),
		Overruns:     NewCounter("motion_tick_overruns_total", "Ticks that took longer than the tick period"),
		TickDuration: NewHistogram("motion_tick_duration_seconds", "Time spent in one tick", ExponentialBuckets(10e-6, 2, 12)),

		Uptime:       NewGauge("motion_uptime_seconds", "Seconds since the metrics were created"),
		GoGoroutines: NewGauge("motion_go_goroutines", "Number of active goroutines"),
		GoMemoryHeap: NewGauge("motion_go_memory_heap_bytes", "Go heap memory in use"),
	}
	m.registry.MustRegister(
		m.CmdPosition, m.CmdVelocity, m.ActPosition, m.AxisStatus, m.QueueDepth,
		m.AxisPowered, m.AxisError,
		m.EmergencyStops, m.PowerChanges, m.HomingDone,
		m.Ticks, m.Overruns, m.TickDuration,
		m.Uptime, m.GoGoroutines, m.GoMemoryHeap,
	)
	return m
}

func axisLabels(a *axis.Axis) Labels {
	return Labels{"axis": strconv.Itoa(int(a.ID()))}
}

// EmergencyStop implements axis.Observer.
func (m *MotionMetrics) EmergencyStop(a *axis.Axis, code errors.Code) {
	m.EmergencyStops.Inc(axisLabels(a).with("code", code.Name()))
	m.AxisError.Set(axisLabels(a), float64(code))
}

// PowerChanged implements axis.Observer.
func (m *MotionMetrics) PowerChanged(a *axis.Axis, on bool) {
	state := "off"
	if on {
		state = "on"
	}
	m.PowerChanges.Inc(axisLabels(a).with("state", state))
	m.AxisPowered.SetBool(axisLabels(a), on)
}

// Homed implements axis.Observer.
func (m *MotionMetrics) Homed(a *axis.Axis, homePos float64) {
	m.HomingDone.Inc(axisLabels(a))
}

// ObserveTick implements reactor.TickObserver.
func (m *MotionMetrics) ObserveTick(d time.Duration, overrun bool) {
	m.Ticks.Inc(nil)
	if overrun {
		m.Overruns.Inc(nil)
	}
	m.TickDuration.Observe(nil, d.Seconds())
}

// Sample records the state of every axis. It must run on the tick
// goroutine.
func (m *MotionMetrics) Sample(s *scheduler.Scheduler) {
	for _, a := range s.Axes() {
		l := axisLabels(a)
		m.CmdPosition.Set(l, a.UserPosition())
		m.CmdVelocity.Set(l, a.CmdVelocity())
		m.ActPosition.Set(l, a.ActPosition())
		m.AxisStatus.Set(l, float64(a.Status()))
		m.QueueDepth.Set(l, float64(a.Remaining()))
		m.AxisPowered.SetBool(l, a.PowerStatus())
		m.AxisError.Set(l, float64(a.ErrorCode()))
	}
}

// SampleEvery returns a tick hook that samples s every n ticks.
func (m *MotionMetrics) SampleEvery(s *scheduler.Scheduler, n uint32) func(tick uint32) {
	if n == 0 {
		n = 1
	}
	return func(tick uint32) {
		if tick%n == 0 {
			m.Sample(s)
		}
	}
}

// updateProcess refreshes the process gauges.
func (m *MotionMetrics) updateProcess() {
	var ms goruntime.MemStats
	goruntime.ReadMemStats(&ms)
	m.Uptime.Set(nil, time.Since(m.startTime).Seconds())
	m.GoGoroutines.Set(nil, float64(goruntime.NumGoroutine()))
	m.GoMemoryHeap.Set(nil, float64(ms.HeapAlloc))
}

// Gather returns all metrics in Prometheus text format
func (m *MotionMetrics) Gather() string {
	m.updateProcess()
	return m.registry.Gather()
}

// Registry returns the internal registry
func (m *MotionMetrics) Registry() *Registry {
	return m.registry
}

var _ axis.Observer = (*MotionMetrics)(nil)
