// Move, halt and stop commands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import (
	"math"

	"plcmotion/pkg/errors"
	"plcmotion/pkg/execq"
	"plcmotion/pkg/log"
	"plcmotion/pkg/profile"
)

type moveState struct {
	profile.Node
	planned bool
	hold    bool
}

// MoveOpts are the positioning options of a move command. The zero value
// is an absolute, aborting move in the current direction.
type MoveOpts struct {
	Shift    ShiftingMode
	Dir      Direction
	Buffer   BufferMode
	CustomID int32
}

func (a *Axis) executeMove(m *moveState) (execq.Result, error) {
	p := a.mover
	if !m.planned {
		m.planned = true
		res := p.PlanNode(&m.Node, a.cmdPos, a.cmdVel, a.cmdAcc)
		if a.log.Enabled(log.DEBUG) {
			a.log.Debug("move %f -> %f, vel %f -> %f, max vel %f, acc %f, dec %f, jerk %f",
				a.cmdPos, m.EndPos, a.cmdVel, m.EndVel, m.Vel, m.Acc, m.Dec, m.Jerk)
		}
		if !res.OK() {
			if res != profile.Empty {
				a.log.WithField("result", res.String()).Warn("move not planned, holding position")
				p.Settle(a.cmdPos)
			}
			p.Execute()
			return execq.FastDone, a.SetPosition(p.EndPosition(), p.EndVelocity(), 0)
		}
	}
	res := execq.Busy
	if p.Execute() {
		res = execq.Done
	}
	return res, a.SetPosition(p.Position(), p.Velocity(), p.Acceleration())
}

// addMove validates a move and queues it. A NaN pos moves until vel is
// reached; the target then follows from the velocity change alone.
func (a *Axis) addMove(c Caller, pos, vel, acc, dec, endVel, jerk float64, opt MoveOpts, active, done Status, hold bool) error {
	if (vel < 0 && !math.IsNaN(pos)) || !isFinite(vel) {
		return errors.VelIllegal
	}
	if acc <= 0 || !isFinite(acc) || dec <= 0 || !isFinite(dec) {
		return errors.AccIllegal
	}
	if math.IsInf(pos, 0) {
		return errors.PosIllegal
	}

	startPos, startVel, startAcc := a.cmdPos, a.cmdVel, a.cmdAcc
	if (opt.Shift == Additive || opt.Buffer != Aborting) && a.queue.Remaining() > 0 {
		prev := a.queue.Back()
		if prev.kind != kindMove {
			return errors.FailedToBuffer
		}
		startPos, startVel, startAcc = prev.move.EndPos, prev.move.EndVel, prev.move.EndAcc
	}

	if math.IsNaN(pos) {
		pos = profile.CalculateDist(startVel, vel, acc, dec) + startPos
	} else {
		switch opt.Shift {
		case Absolute:
			pos = a.UserPosToSys(startPos, pos, opt.Dir)
		case Relative, Additive:
			pos += startPos
		default:
			return errors.ShiftingModeIllegal
		}
	}

	return a.enqueue(c, opt.Buffer == Aborting, active, done, opt.CustomID, func(n *node) {
		n.kind = kindMove
		n.move = moveState{
			Node: profile.Node{
				StartPos: startPos,
				StartVel: startVel,
				StartAcc: startAcc,
				EndPos:   pos,
				EndVel:   endVel,
				Vel:      vel,
				Acc:      acc,
				Dec:      dec,
				Jerk:     jerk,
			},
			hold: hold,
		}
	})
}

// AddMovePos queues a discrete move that ends at rest.
func (a *Axis) AddMovePos(c Caller, pos, vel, acc, dec, jerk float64, opt MoveOpts) error {
	if vel == 0 {
		return errors.VelIllegal
	}
	return a.addMove(c, pos, vel, acc, dec, 0, jerk, opt, DiscreteMotion, Standstill, false)
}

// AddMovePosCont queues a move that passes pos at endVel and keeps going.
func (a *Axis) AddMovePosCont(c Caller, pos, vel, acc, dec, endVel, jerk float64, opt MoveOpts) error {
	if endVel == 0 || vel == 0 {
		return errors.VelIllegal
	}
	return a.addMove(c, pos, vel, acc, dec, endVel, jerk, opt, ContinuousMotion, ContinuousMotion, true)
}

// AddMoveVel queues a ramp to a constant signed velocity.
func (a *Axis) AddMoveVel(c Caller, vel, acc, dec, jerk float64, buffer BufferMode, customID int32) error {
	if vel == 0 {
		return errors.VelIllegal
	}
	opt := MoveOpts{Dir: DirectionCurrent, Buffer: buffer, CustomID: customID}
	return a.addMove(c, math.NaN(), vel, acc, dec, vel, jerk, opt, ContinuousMotion, ContinuousMotion, true)
}

// AddHalt queues a controlled stop that other commands may interrupt.
func (a *Axis) AddHalt(c Caller, dec, jerk float64, buffer BufferMode, customID int32) error {
	opt := MoveOpts{Dir: DirectionCurrent, Buffer: buffer, CustomID: customID}
	return a.addMove(c, math.NaN(), profile.Epsilon, dec, dec, 0, jerk, opt, DiscreteMotion, Standstill, false)
}

// AddStop aborts everything and stops the axis. The axis stays in
// Stopping until CancelStopLater.
func (a *Axis) AddStop(c Caller, dec, jerk float64, customID int32) error {
	opt := MoveOpts{Dir: DirectionCurrent, Buffer: Aborting, CustomID: customID}
	return a.addMove(c, math.NaN(), profile.Epsilon, dec, dec, 0, jerk, opt, Stopping, Stopping, false)
}

// CancelStopLater releases a Stopping axis. A stop still running will end
// in Standstill instead.
func (a *Axis) CancelStopLater() {
	if a.status.current != Stopping {
		return
	}
	if a.queue.Remaining() == 0 {
		_ = a.setStatus(Standstill)
		return
	}
	if n := a.queue.Front(); n != nil && n.statusDone == Stopping {
		n.statusDone = Standstill
	}
}
