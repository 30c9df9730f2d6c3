// PLCopen function block base behaviour
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package fb is the PLCopen function block facade over pkg/axis. Blocks
// are called once per PLC scan on the tick goroutine: set the inputs,
// call Call, read the outputs.
package fb

import "plcmotion/pkg/errors"

// Block is anything evaluated once per scan.
type Block interface {
	Call()
}

// Enabler is a level triggered block.
type Enabler interface {
	Block
	SetEnable(on bool)
}

// Executor is an edge triggered block.
type Executor interface {
	Block
	SetExecute(on bool)
	IsDone() bool
	IsBusy() bool
}

// Reader is a level triggered block that publishes values while enabled.
type Reader interface {
	Enabler
	IsValid() bool
}

// Base carries the error outputs every block has.
type Base struct {
	Error   bool
	ErrorID errors.Code
}

func (b *Base) setError(code errors.Code) {
	b.Error = true
	b.ErrorID = code
}

func (b *Base) clearError() {
	b.Error = false
	b.ErrorID = errors.Good
}

// codeOf narrows a request error to its code. Errors that carry no code
// are reported as hardware faults.
func codeOf(err error) errors.Code {
	if code, ok := errors.CodeOf(err); ok {
		return code
	}
	return errors.AxisHardware
}

// ComExecute runs its action on every scan while Execute is high until the
// action reports done.
type ComExecute struct {
	Base
	Execute bool

	Done bool
	Busy bool
}

func (c *ComExecute) SetExecute(on bool) { c.Execute = on }
func (c *ComExecute) IsDone() bool       { return c.Done }
func (c *ComExecute) IsBusy() bool       { return c.Busy }

func (c *ComExecute) fail(code errors.Code) {
	c.Done, c.Busy = false, false
	c.setError(code)
}

func (c *ComExecute) call(triggered func() (bool, error)) {
	if !c.Execute {
		c.Done, c.Busy = false, false
		c.clearError()
		return
	}
	if c.Done || c.Error {
		return
	}
	done, err := triggered()
	if err != nil {
		c.fail(codeOf(err))
		return
	}
	c.Done = done
	c.Busy = !done
	c.clearError()
}

// SeqExecute starts a queued axis command on the rising edge of Execute
// and follows it through the axis callbacks. Outputs stay latched for one
// scan after a command ends while Execute is already low.
type SeqExecute struct {
	Base
	Execute bool

	Done           bool
	Busy           bool
	Active         bool
	CommandAborted bool

	trigger bool
	ok      bool
}

func (s *SeqExecute) SetExecute(on bool) { s.Execute = on }
func (s *SeqExecute) IsDone() bool       { return s.Done }
func (s *SeqExecute) IsBusy() bool       { return s.Busy }

func (s *SeqExecute) reset() {
	s.Done, s.CommandAborted, s.Busy, s.Active = false, false, false, false
	s.clearError()
}

func (s *SeqExecute) call(posedge func() error, negedge func()) {
	switch {
	case s.Execute && !s.trigger:
		if err := posedge(); err != nil {
			s.OnOperationError(codeOf(err), 0)
		} else {
			s.Done, s.Active, s.CommandAborted = false, false, false
			s.Busy = true
			s.ok = false
			s.clearError()
		}
	case s.Execute && s.trigger:
	case !s.Execute && s.trigger:
		if (s.Done || s.CommandAborted || s.Error) && !s.Busy {
			s.reset()
		}
		s.ok = false
		if negedge != nil {
			negedge()
		}
	default:
		if !s.Busy && !s.ok {
			s.reset()
		}
		s.ok = false
	}
	s.trigger = s.Execute
}

func (s *SeqExecute) OnOperationActive(customID int32) {
	s.Done, s.CommandAborted = false, false
	s.Busy, s.Active = true, true
	s.clearError()
}

func (s *SeqExecute) OnOperationAborted(customID int32) {
	s.Done, s.Busy, s.Active = false, false, false
	s.CommandAborted = true
	s.ok = !s.Execute
	s.clearError()
}

func (s *SeqExecute) OnOperationDone(customID int32) {
	s.CommandAborted, s.Busy, s.Active = false, false, false
	s.Done = true
	s.ok = !s.Execute
	s.clearError()
}

func (s *SeqExecute) OnOperationError(code errors.Code, customID int32) {
	s.Done, s.Busy, s.Active, s.CommandAborted = false, false, false, false
	s.ok = !s.Execute
	s.setError(code)
}

// ReadInfo publishes values while Enable is high.
type ReadInfo struct {
	Base
	Enable bool

	Valid bool
	Busy  bool
}

func (r *ReadInfo) SetEnable(on bool) { r.Enable = on }
func (r *ReadInfo) IsValid() bool     { return r.Valid }

func (r *ReadInfo) call(enable func() (bool, error), disable func()) {
	if !r.Enable {
		r.Valid, r.Busy = false, false
		disable()
		r.clearError()
		return
	}
	done, err := enable()
	if err != nil {
		r.Valid, r.Busy = false, false
		disable()
		r.setError(codeOf(err))
		return
	}
	r.Valid = done
	r.Busy = !done
	r.clearError()
}
