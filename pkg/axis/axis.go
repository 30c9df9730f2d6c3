// Single axis motion kernel
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package axis implements one PLCopen axis: the status machine, the
// command queue, the position loop that feeds the servo drive and the
// move and homing commands built on top of them.
//
// An Axis is not safe for concurrent use. Every method, requests included,
// must run on the goroutine that calls RunCycle.
package axis

import (
	"plcmotion/pkg/errors"
	"plcmotion/pkg/execq"
	"plcmotion/pkg/log"
	"plcmotion/pkg/profile"
	"plcmotion/pkg/servo"
)

// Clock supplies the scheduler timing to an axis.
type Clock interface {
	Frequency() float64
	Tick() uint32
}

// Caller receives the lifecycle notifications of the commands it queued.
// Function blocks implement it.
type Caller interface {
	OnOperationActive(customID int32)
	OnOperationAborted(customID int32)
	OnOperationDone(customID int32)
	OnOperationError(code errors.Code, customID int32)
}

// Observer is notified of axis level events after the kernel has handled
// them. Methods run on the tick goroutine and must not block.
type Observer interface {
	EmergencyStop(a *Axis, code errors.Code)
	PowerChanged(a *Axis, on bool)
	Homed(a *Axis, homePos float64)
}

// Observers fans events out to several observers in order.
type Observers []Observer

func (os Observers) EmergencyStop(a *Axis, code errors.Code) {
	for _, o := range os {
		o.EmergencyStop(a, code)
	}
}

func (os Observers) PowerChanged(a *Axis, on bool) {
	for _, o := range os {
		o.PowerChanged(a, on)
	}
}

func (os Observers) Homed(a *Axis, homePos float64) {
	for _, o := range os {
		o.Homed(a, homePos)
	}
}

type commandQueue = execq.Queue[*Axis, node, *node]

// Axis is one controlled degree of freedom.
type Axis struct {
	id    int32
	name  string
	clock Clock
	dev   servo.Device
	log   *log.Logger
	obs   Observer

	metric      MetricInfo
	rangeLimit  RangeLimitInfo
	motionLimit MotionLimitInfo
	control     ControlInfo
	homePos     float64

	errCode    errors.Code
	devErr     servo.ErrorCode
	needReset  bool
	powerReq   bool
	powerValid bool
	enPos      bool
	enNeg      bool

	submitPos      float64
	cmdPos         float64
	cmdVel         float64
	cmdAcc         float64
	calVel         float64
	overflowOffset float64

	status statusMachine
	queue  *commandQueue
	mover  *profile.Multi
	homing homingConfig
	homer  *profile.Planner
}

// New creates a disabled axis driving dev. A nil dev gets a simulated
// drive.
func New(id int32, dev servo.Device, clock Clock) *Axis {
	if dev == nil {
		dev = servo.NewSim()
	}
	cfg := DefaultConfig()
	a := &Axis{
		id:          id,
		name:        "Axis",
		clock:       clock,
		dev:         dev,
		log:         log.GetLogger("axis").With(log.Fields{"axis": id}),
		metric:      cfg.Metric,
		motionLimit: cfg.MotionLimit,
		control:     cfg.Control,
		queue:       execq.New[*Axis, node, *node](execq.DefaultCapacity),
		mover:       profile.NewMulti(),
		homer:       profile.New(),
	}
	a.homing.info.Mode = HomingDirect
	a.queue.OnAllAborted(func(a *Axis) { a.log.Debug("command queue aborted") })
	return a
}

// SetObserver installs the event observer. It is meant to be called once
// while wiring the runtime.
func (a *Axis) SetObserver(o Observer) { a.obs = o }

func (a *Axis) ID() int32 { return a.id }

func (a *Axis) Name() string { return a.name }

func (a *Axis) SetName(name string) { a.name = name }

// Device returns the servo drive.
func (a *Axis) Device() servo.Device { return a.dev }

func (a *Axis) frequency() float64 {
	if a.clock == nil {
		return float64(profile.DefaultFrequency)
	}
	return a.clock.Frequency()
}

// RunCycle advances the axis by one tick: one queue step, the drive
// status handshakes, the position loop and one drive cycle.
func (a *Axis) RunCycle() {
	a.queue.Step(a)
	a.maintainServo()
	a.positionLoop()
	a.dev.RunCycle(a.frequency())
}

// Status returns the operating state.
func (a *Axis) Status() Status { return a.status.current }

// ErrorCode returns the latched axis error, Good when healthy.
func (a *Axis) ErrorCode() errors.Code { return a.errCode }

// DevErrorCode returns the last drive fault.
func (a *Axis) DevErrorCode() servo.ErrorCode { return a.devErr }

// PowerStatus reports whether the drive is confirmed powered.
func (a *Axis) PowerStatus() bool { return a.powerReq && a.powerValid }

// Busy reports whether commands are queued or held.
func (a *Axis) Busy() bool { return a.queue.Busy() }

// Remaining returns the number of queued commands.
func (a *Axis) Remaining() int { return a.queue.Remaining() }

func (a *Axis) CmdPosition() float64     { return a.cmdPos }
func (a *Axis) CmdVelocity() float64     { return a.cmdVel }
func (a *Axis) CmdAcceleration() float64 { return a.cmdAcc }

// PositionOffset returns the overflow correction of the last tick.
func (a *Axis) PositionOffset() float64 { return a.overflowOffset }

func (a *Axis) ActPosition() float64     { return a.toSys(float64(a.dev.Pos())) }
func (a *Axis) ActVelocity() float64     { return a.toSys(float64(a.dev.Vel())) }
func (a *Axis) ActAcceleration() float64 { return a.toSys(float64(a.dev.Acc())) }
func (a *Axis) ActTorque() float64       { return a.dev.Torque() }

func (a *Axis) ServoReadVal(index int) (float64, bool) { return a.dev.ReadVal(index) }

func (a *Axis) ServoWriteVal(index int, value float64) bool {
	return a.dev.WriteVal(index, value)
}

// MotionState reports the phase of the running move profile: 0 standstill,
// 1 constant velocity, 2 accelerating, 3 decelerating.
func (a *Axis) MotionState() int { return a.mover.ReadStatus() }

// setStatus applies a table transition.
func (a *Axis) setStatus(s Status) error { return a.status.set(s) }

// Event dispatch. Handlers run in a fixed order: status machine, command
// queue, planners, then the observer.

func (a *Axis) onError(code errors.Code) {
	a.status.current = ErrorStop
	a.queue.FailAll(a, code)
	if a.obs != nil {
		a.obs.EmergencyStop(a, code)
	}
}

func (a *Axis) onPowerChanged(on bool) {
	if on {
		a.status.current = Standstill
	} else {
		a.status.current = Disabled
	}
	a.queue.AbortAll(a)
	if on {
		freq := uint32(a.frequency())
		a.mover.SetFrequency(freq)
		a.homer.SetFrequency(freq)
	}
	if a.obs != nil {
		a.obs.PowerChanged(a, on)
	}
}

func (a *Axis) onPositionOffset(off float64) {
	a.queue.Each(func(n *node) { n.shift(off) })
	a.mover.SetPositionOffset(off)
	a.homer.SetPositionOffset(off)
}
