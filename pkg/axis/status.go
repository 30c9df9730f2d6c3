// Axis operating state machine
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import "plcmotion/pkg/errors"

// Status is the PLCopen operating state of an axis.
type Status int

const (
	Disabled Status = iota
	Standstill
	Homing
	DiscreteMotion
	ContinuousMotion
	SynchronizedMotion
	Stopping
	ErrorStop
)

var statusNames = [...]string{
	Disabled:           "disabled",
	Standstill:         "standstill",
	Homing:             "homing",
	DiscreteMotion:     "discrete_motion",
	ContinuousMotion:   "continuous_motion",
	SynchronizedMotion: "synchronized_motion",
	Stopping:           "stopping",
	ErrorStop:          "error_stop",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Code returns the error that reports a command rejected in this status.
func (s Status) Code() errors.Code {
	if s < Disabled || s > ErrorStop {
		return errors.AxisDisabled
	}
	return errors.FromStatus(int(s))
}

func isMotion(s Status) bool {
	return s == DiscreteMotion || s == ContinuousMotion || s == SynchronizedMotion
}

// statusMachine guards the table transitions. Forced transitions write
// current directly.
type statusMachine struct {
	current Status
}

// test reports whether current may move to next. A rejection carries the
// code mirroring the current status.
func (m *statusMachine) test(next Status) error {
	if next == m.current {
		return nil
	}
	ok := false
	switch m.current {
	case Standstill:
		ok = isMotion(next) || next == Stopping || next == Homing
	case DiscreteMotion, ContinuousMotion, SynchronizedMotion:
		ok = isMotion(next) || next == Standstill || next == Stopping
	case Homing:
		ok = next == Standstill || next == Stopping
	case Stopping:
		ok = next == Standstill
	}
	if !ok {
		return m.current.Code()
	}
	return nil
}

func (m *statusMachine) set(next Status) error {
	if err := m.test(next); err != nil {
		return err
	}
	m.current = next
	return nil
}
