// Single axis function blocks
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package fb

import (
	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/servo"
)

// Power switches the axis drive. Status follows Enable once the drive
// confirmed the request.
type Power struct {
	Base
	Axis           *axis.Axis
	Enable         bool
	EnablePositive bool
	EnableNegative bool

	Status bool
	Valid  bool
}

func (p *Power) SetEnable(on bool) { p.Enable = on }

func (p *Power) fail(code errors.Code) {
	p.Status, p.Valid = false, false
	p.setError(code)
}

func (p *Power) Call() {
	if p.Axis == nil {
		p.fail(errors.AxisNotExist)
		return
	}
	done, err := p.Axis.SetPower(p.Enable, p.EnablePositive, p.EnableNegative)
	if err != nil {
		p.fail(codeOf(err))
		return
	}
	p.Status = done && p.Enable
	p.Valid = done
	p.clearError()
}

// axisCommand starts a queued command on the axis, or reports a missing
// axis.
func axisCommand(a *axis.Axis, add func(a *axis.Axis) error) func() error {
	return func() error {
		if a == nil {
			return errors.AxisNotExist
		}
		return add(a)
	}
}

// Home runs the configured homing sequence and maps the switch to
// Position.
type Home struct {
	SeqExecute
	Axis       *axis.Axis
	BufferMode axis.BufferMode
	Position   float64
}

func (h *Home) Call() {
	h.call(axisCommand(h.Axis, func(a *axis.Axis) error {
		return a.AddHoming(h, h.Position, h.BufferMode, 0)
	}), nil)
}

// Stop brings the axis to rest and keeps it locked in Stopping until
// Execute falls.
type Stop struct {
	SeqExecute
	Axis         *axis.Axis
	Deceleration float64
	Jerk         float64
}

func (s *Stop) Call() {
	s.call(axisCommand(s.Axis, func(a *axis.Axis) error {
		return a.AddStop(s, s.Deceleration, s.Jerk, 0)
	}), func() {
		if s.Axis != nil {
			s.Axis.CancelStopLater()
		}
	})
}

// Halt brings the axis to rest; later commands may interrupt it.
type Halt struct {
	SeqExecute
	Axis         *axis.Axis
	BufferMode   axis.BufferMode
	Deceleration float64
	Jerk         float64
}

func (h *Halt) Call() {
	h.call(axisCommand(h.Axis, func(a *axis.Axis) error {
		return a.AddHalt(h, h.Deceleration, h.Jerk, h.BufferMode, 0)
	}), nil)
}

// Motion inputs shared by the positioning blocks.
type Motion struct {
	Velocity     float64
	Acceleration float64
	Deceleration float64
	Jerk         float64
}

type MoveAbsolute struct {
	SeqExecute
	Motion
	Axis       *axis.Axis
	BufferMode axis.BufferMode
	Position   float64
	Direction  axis.Direction
}

func (m *MoveAbsolute) Call() {
	m.call(axisCommand(m.Axis, func(a *axis.Axis) error {
		return a.AddMovePos(m, m.Position, m.Velocity, m.Acceleration, m.Deceleration, m.Jerk,
			axis.MoveOpts{Shift: axis.Absolute, Dir: m.Direction, Buffer: m.BufferMode})
	}), nil)
}

// MoveRelative moves Distance from the command position at the start.
type MoveRelative struct {
	SeqExecute
	Motion
	Axis       *axis.Axis
	BufferMode axis.BufferMode
	Distance   float64
}

func (m *MoveRelative) Call() {
	m.call(axisCommand(m.Axis, func(a *axis.Axis) error {
		return a.AddMovePos(m, m.Distance, m.Velocity, m.Acceleration, m.Deceleration, m.Jerk,
			axis.MoveOpts{Shift: axis.Relative, Dir: axis.DirectionCurrent, Buffer: m.BufferMode})
	}), nil)
}

// MoveAdditive moves Distance from the target of the last queued command.
type MoveAdditive struct {
	SeqExecute
	Motion
	Axis       *axis.Axis
	BufferMode axis.BufferMode
	Distance   float64
}

func (m *MoveAdditive) Call() {
	m.call(axisCommand(m.Axis, func(a *axis.Axis) error {
		return a.AddMovePos(m, m.Distance, m.Velocity, m.Acceleration, m.Deceleration, m.Jerk,
			axis.MoveOpts{Shift: axis.Additive, Dir: axis.DirectionCurrent, Buffer: m.BufferMode})
	}), nil)
}

// MoveVelocity ramps to a signed Velocity. Reaching it sets InVelocity
// while the block stays Busy and Active until another command takes over.
type MoveVelocity struct {
	SeqExecute
	Motion
	Axis       *axis.Axis
	BufferMode axis.BufferMode
}

// InVelocity reports the constant velocity phase.
func (m *MoveVelocity) InVelocity() bool { return m.Done }

func (m *MoveVelocity) OnOperationDone(customID int32) {
	m.CommandAborted = false
	m.Busy, m.Active, m.Done = true, true, true
	m.clearError()
}

func (m *MoveVelocity) Call() {
	m.call(axisCommand(m.Axis, func(a *axis.Axis) error {
		return a.AddMoveVel(m, m.Velocity, m.Acceleration, m.Deceleration, m.Jerk, m.BufferMode, 0)
	}), nil)
}

// axisRead evaluates read against the axis, or reports a missing axis.
func axisRead(a *axis.Axis, read func(a *axis.Axis) error) func() (bool, error) {
	return func() (bool, error) {
		if a == nil {
			return false, errors.AxisNotExist
		}
		if err := read(a); err != nil {
			return false, err
		}
		return true, nil
	}
}

// ReadStatus publishes the axis state as one flag per status.
type ReadStatus struct {
	ReadInfo
	Axis *axis.Axis

	ErrorStop          bool
	Disabled           bool
	Stopping           bool
	Homing             bool
	Standstill         bool
	DiscreteMotion     bool
	ContinuousMotion   bool
	SynchronizedMotion bool
}

func (r *ReadStatus) clear() {
	r.ErrorStop, r.Disabled, r.Stopping, r.Homing = false, false, false, false
	r.Standstill, r.DiscreteMotion, r.ContinuousMotion, r.SynchronizedMotion = false, false, false, false
}

func (r *ReadStatus) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		r.clear()
		switch a.Status() {
		case axis.Disabled:
			r.Disabled = true
		case axis.Standstill:
			r.Standstill = true
		case axis.Homing:
			r.Homing = true
		case axis.DiscreteMotion:
			r.DiscreteMotion = true
		case axis.ContinuousMotion:
			r.ContinuousMotion = true
		case axis.SynchronizedMotion:
			r.SynchronizedMotion = true
		case axis.Stopping:
			r.Stopping = true
		case axis.ErrorStop:
			r.ErrorStop = true
		}
		return nil
	}), r.clear)
}

// ReadMotionState classifies the motion from the signs of velocity and
// acceleration, commanded or measured.
type ReadMotionState struct {
	ReadInfo
	Axis   *axis.Axis
	Source axis.Source

	ConstantVelocity  bool
	Accelerating      bool
	Decelerating      bool
	DirectionPositive bool
	DirectionNegative bool
}

func (r *ReadMotionState) clear() {
	r.ConstantVelocity, r.Accelerating, r.Decelerating = false, false, false
	r.DirectionPositive, r.DirectionNegative = false, false
}

func (r *ReadMotionState) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		var vel, acc float64
		switch r.Source {
		case axis.SetValue:
			vel, acc = a.CmdVelocity(), a.CmdAcceleration()
		case axis.ActualValue:
			vel, acc = a.ActVelocity(), a.ActAcceleration()
		default:
			return errors.SourceIllegal
		}
		r.clear()
		switch {
		case vel > 0:
			r.DirectionPositive = true
			r.Decelerating = acc < 0
			r.Accelerating = acc > 0
			r.ConstantVelocity = acc == 0
		case vel < 0:
			r.DirectionNegative = true
			r.Decelerating = acc > 0
			r.Accelerating = acc < 0
			r.ConstantVelocity = acc == 0
		default:
			r.Accelerating = acc != 0
		}
		return nil
	}), r.clear)
}

// ReadAxisError publishes the latched axis and drive error codes. It has
// no error output of its own: ErrorID carries the axis error.
type ReadAxisError struct {
	Base
	Axis   *axis.Axis
	Enable bool

	Valid       bool
	Busy        bool
	AxisErrorID servo.ErrorCode
}

func (r *ReadAxisError) SetEnable(on bool) { r.Enable = on }
func (r *ReadAxisError) IsValid() bool     { return r.Valid }

func (r *ReadAxisError) Call() {
	if !r.Enable {
		r.Valid = false
		r.ErrorID = errors.Good
		r.AxisErrorID = 0
		return
	}
	if r.Axis == nil {
		return
	}
	r.Valid = true
	r.Error = false
	r.ErrorID = r.Axis.ErrorCode()
	r.AxisErrorID = r.Axis.DevErrorCode()
}

// Reset clears the axis error. Done follows the drive reset handshake.
type Reset struct {
	ComExecute
	Axis *axis.Axis
}

func (r *Reset) Call() {
	r.call(func() (bool, error) {
		if r.Axis == nil {
			return false, errors.AxisNotExist
		}
		return r.Axis.ResetError()
	})
}

// EmergencyStop latches a software emergency stop on the axis.
type EmergencyStop struct {
	ComExecute
	Axis *axis.Axis
}

func (e *EmergencyStop) Call() {
	e.call(func() (bool, error) {
		if e.Axis == nil {
			return false, errors.AxisNotExist
		}
		e.Axis.EmergencyStop(errors.SoftwareEmgs)
		return true, nil
	})
}

// ReadActualPosition publishes the measured position.
type ReadActualPosition struct {
	ReadInfo
	Axis     *axis.Axis
	Position float64
}

func (r *ReadActualPosition) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		r.Position = a.ActPosition()
		return nil
	}), func() { r.Position = 0 })
}

// ReadCommandPosition publishes the commanded position.
type ReadCommandPosition struct {
	ReadInfo
	Axis     *axis.Axis
	Position float64
}

func (r *ReadCommandPosition) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		r.Position = a.CmdPosition()
		return nil
	}), func() { r.Position = 0 })
}

// ReadActualVelocity publishes the measured velocity.
type ReadActualVelocity struct {
	ReadInfo
	Axis     *axis.Axis
	Velocity float64
}

func (r *ReadActualVelocity) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		r.Velocity = a.ActVelocity()
		return nil
	}), func() { r.Velocity = 0 })
}

// ReadCommandVelocity publishes the commanded velocity.
type ReadCommandVelocity struct {
	ReadInfo
	Axis     *axis.Axis
	Velocity float64
}

func (r *ReadCommandVelocity) Call() {
	r.call(axisRead(r.Axis, func(a *axis.Axis) error {
		r.Velocity = a.CmdVelocity()
		return nil
	}), func() { r.Velocity = 0 })
}

var (
	_ Enabler  = (*Power)(nil)
	_ Executor = (*MoveAbsolute)(nil)
	_ Executor = (*Reset)(nil)
	_ Reader   = (*ReadStatus)(nil)
	_ Reader   = (*ReadAxisError)(nil)

	_ axis.Caller = (*Home)(nil)
	_ axis.Caller = (*MoveVelocity)(nil)
)
