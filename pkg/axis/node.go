// Queued axis commands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import (
	"plcmotion/pkg/errors"
	"plcmotion/pkg/execq"
)

type nodeKind uint8

const (
	kindMove nodeKind = iota + 1
	kindHoming
)

// node is one queued command. It lives by value in a queue slot, so the
// variant state is stored inline instead of behind an interface.
type node struct {
	kind         nodeKind
	caller       Caller
	statusActive Status
	statusDone   Status
	customID     int32

	move moveState
	home homeState
}

func (n *node) Activate(a *Axis) error {
	if err := a.setStatus(n.statusActive); err != nil {
		return err
	}
	if n.caller != nil {
		n.caller.OnOperationActive(n.customID)
	}
	return nil
}

func (n *node) Execute(a *Axis) (execq.Result, error) {
	switch n.kind {
	case kindMove:
		return a.executeMove(&n.move)
	case kindHoming:
		return a.executeHoming(&n.home)
	}
	return execq.FastDone, nil
}

func (n *node) Complete(a *Axis) bool {
	// a failed transition keeps the current status
	_ = a.setStatus(n.statusDone)
	if n.caller != nil {
		n.caller.OnOperationDone(n.customID)
	}
	return n.kind == kindMove && n.move.hold
}

func (n *node) Abort(a *Axis) {
	if n.caller != nil {
		n.caller.OnOperationAborted(n.customID)
	}
}

func (n *node) Fail(a *Axis, err error) {
	if n.caller == nil {
		return
	}
	code, ok := errors.CodeOf(err)
	if !ok {
		code = errors.AxisHardware
	}
	n.caller.OnOperationError(code, n.customID)
}

// shift moves the stored absolute positions by off.
func (n *node) shift(off float64) {
	if n.kind == kindMove {
		n.move.StartPos += off
		n.move.EndPos += off
	}
}

// enqueue validates the axis state and queues a command. An aborting
// command must be able to enter its active status right away.
func (a *Axis) enqueue(c Caller, abort bool, active, done Status, customID int32, init func(n *node)) error {
	if a.errCode != errors.Good {
		return a.errCode
	}
	if !a.PowerStatus() {
		return errors.AxisPowerOff
	}
	if abort {
		if err := a.setStatus(active); err != nil {
			return err
		}
	}
	return a.queue.Enqueue(a, abort, func(n *node) {
		init(n)
		n.caller = c
		n.statusActive = active
		n.statusDone = done
		n.customID = customID
	})
}
