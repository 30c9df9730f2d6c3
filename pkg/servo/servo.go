// Servo drive abstraction
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package servo defines the device contract an axis drives once per tick
// and a simulated drive that follows commanded positions exactly.
package servo

import "fmt"

// ErrorCode is a drive specific fault number. Zero means no fault.
type ErrorCode uint32

// Unsupported is returned by drives for command kinds they cannot execute.
const Unsupported ErrorCode = 0xFFFFFFFF

func (c ErrorCode) String() string {
	if c == Unsupported {
		return "unsupported"
	}
	return fmt.Sprintf("0x%x", uint32(c))
}

// Device is a servo drive. All values are in raw device units. Every
// method is called from the tick goroutine only.
type Device interface {
	// SetPower requests the power stage on or off. done is true once the
	// drive has reached the requested state; until then the call is
	// repeated every tick.
	SetPower(on bool) (err ErrorCode, done bool)
	SetPos(pos int32) ErrorCode
	SetVel(vel int32) ErrorCode
	SetTorque(torque float64) ErrorCode

	Pos() int32
	Vel() int32
	Acc() int32
	Torque() float64

	// ReadVal and WriteVal access drive parameters by index.
	ReadVal(index int) (float64, bool)
	WriteVal(index int, value float64) bool

	// ResetError clears a drive fault. It is repeated every tick until
	// done or a fault is returned.
	ResetError() (err ErrorCode, done bool)

	// RunCycle is called once per tick after the command was written.
	RunCycle(freq float64)

	// EmergStop halts the drive immediately.
	EmergStop()
}

// Sim is an ideal position-mode drive: the commanded position is reached
// at the end of every cycle. Velocity and acceleration are derived from
// consecutive positions.
type Sim struct {
	submit int32
	pos    int32
	vel    float64
	acc    float64
}

// NewSim returns a simulated drive at raw position zero.
func NewSim() *Sim {
	return &Sim{}
}

// Preset moves the simulated encoder to pos without motion.
func (s *Sim) Preset(pos int32) {
	s.submit = pos
	s.pos = pos
	s.vel = 0
	s.acc = 0
}

func (s *Sim) SetPower(on bool) (ErrorCode, bool) { return 0, true }

func (s *Sim) SetPos(pos int32) ErrorCode {
	s.submit = pos
	return 0
}

func (s *Sim) SetVel(vel int32) ErrorCode { return Unsupported }

func (s *Sim) SetTorque(torque float64) ErrorCode { return Unsupported }

func (s *Sim) Pos() int32 { return s.pos }

func (s *Sim) Vel() int32 { return int32(s.vel) }

func (s *Sim) Acc() int32 { return int32(s.acc) }

func (s *Sim) Torque() float64 { return 0 }

func (s *Sim) ReadVal(index int) (float64, bool) { return 0, false }

func (s *Sim) WriteVal(index int, value float64) bool { return false }

func (s *Sim) ResetError() (ErrorCode, bool) { return 0, true }

func (s *Sim) RunCycle(freq float64) {
	// int32 subtraction wraps across the encoder boundary
	diff := s.submit - s.pos
	v := float64(diff) * freq
	s.acc = (v - s.vel) * freq
	s.vel = v
	s.pos = s.submit
}

func (s *Sim) EmergStop() {
	s.pos = s.submit
	s.vel = 0
	s.acc = 0
}
