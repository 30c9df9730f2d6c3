// Homing sequence
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

type homingStep uint8

const (
	stepInit homingStep = iota
	stepSearchSig
	stepRegressionSig
	stepToSig
)

func (s homingStep) String() string {
	switch s {
	case stepInit:
		return "init"
	case stepSearchSig:
		return "search"
	case stepRegressionSig:
		return "regression"
	case stepToSig:
		return "to_signal"
	default:
		return "unknown"
	}
}

type homeState struct {
	pos      float64
	finalPos float64
	step     homingStep
}

// homingConfig is the accepted HomingInfo with signed velocities and the
// input level that marks the switch as hit.
type homingConfig struct {
	info    HomingInfo
	trigger bool
}

// HomingInfo returns the accepted homing parameters. Velocities carry the
// direction of the configured mode.
func (a *Axis) HomingInfo() HomingInfo { return a.homing.info }

// SetHomingInfo validates and stores the homing parameters.
func (a *Axis) SetHomingInfo(info HomingInfo) error {
	if info.Mode != HomingDirect {
		if info.VelSearch == 0 || info.VelRegression == 0 {
			return errors.HomingVelIllegal
		}
		if info.Acc == 0 {
			return errors.HomingAccIllegal
		}
		if info.Signal == nil || info.SignalBit > 7 {
			return errors.HomingSignalIllegal
		}
	}

	h := &a.homing
	switch info.Mode {
	case HomingDirect:
		h.info.Signal = nil
		h.info.Mode = HomingDirect
		return nil
	case HomingMode5, HomingMode6:
		h.trigger = info.Mode == HomingMode5
		h.info.VelSearch = -math.Abs(info.VelSearch)
		h.info.VelRegression = math.Abs(info.VelRegression)
	case HomingMode7, HomingMode8:
		h.trigger = info.Mode == HomingMode7
		h.info.VelSearch = math.Abs(info.VelSearch)
		h.info.VelRegression = -math.Abs(info.VelRegression)
	default:
		return errors.HomingModeIllegal
	}
	h.info.Signal = info.Signal
	h.info.SignalBit = info.SignalBit
	h.info.Mode = info.Mode
	h.info.Acc = math.Abs(info.Acc)
	h.info.Jerk = math.Abs(info.Jerk)
	return nil
}

// AddHoming queues a homing run that maps the switch position to pos.
func (a *Axis) AddHoming(c Caller, pos float64, buffer BufferMode, customID int32) error {
	if !isFinite(pos) {
		return errors.PosIllegal
	}
	return a.enqueue(c, buffer == Aborting, Homing, Standstill, customID, func(n *node) {
		n.kind = kindHoming
		n.home = homeState{pos: pos}
	})
}

func (a *Axis) homingInput() bool {
	h := &a.homing.info
	return (h.Signal.Byte()>>h.SignalBit)&1 == 1
}

// planHomingRamp ramps from the present command state to a constant vel.
func (a *Axis) planHomingRamp(vel float64) {
	acc := a.homing.info.Acc
	dist := profile.CalculateDist(a.cmdVel, vel, acc, acc)
	a.homer.Plan(a.cmdPos, a.cmdPos+dist, a.cmdVel, vel, vel, acc, acc)
}

// enterToSig latches the switch position and plans the final stop.
func (a *Axis) enterToSig(h *homeState) {
	cfg := &a.homing.info
	h.finalPos = a.ActPosition()
	dist := profile.CalculateDist(a.cmdVel, profile.Epsilon, cfg.Acc, cfg.Acc)
	res := a.homer.Plan(a.cmdPos, a.cmdPos+dist, a.cmdVel, cfg.VelRegression, 0, cfg.Acc, cfg.Acc)
	if !res.OK() && res != profile.Empty {
		a.homer.Settle(a.cmdPos)
	}
	h.step = stepToSig
}

func (a *Axis) executeHoming(h *homeState) (execq.Result, error) {
	cfg := &a.homing
	switch h.step {
	case stepInit:
		if cfg.info.Signal == nil {
			a.enterToSig(h)
			break
		}
		a.log.WithFields(log.Fields{
			"vel":     cfg.info.VelSearch,
			"bit":     cfg.info.SignalBit,
			"trigger": cfg.trigger,
		}).Info("homing start")
		if cfg.info.VelSearch == 0 || cfg.info.VelRegression == 0 {
			return execq.Busy, errors.HomingVelIllegal
		}
		if cfg.info.Acc == 0 {
			return execq.Busy, errors.HomingAccIllegal
		}
		a.planHomingRamp(cfg.info.VelSearch)
		h.step = stepSearchSig

	case stepSearchSig:
		if a.homingInput() == cfg.trigger {
			a.planHomingRamp(cfg.info.VelRegression)
			h.step = stepRegressionSig
			a.log.Info("homing regressing, vel %f", cfg.info.VelRegression)
		}

	case stepRegressionSig:
		if a.homingInput() != cfg.trigger {
			a.enterToSig(h)
		}

	case stepToSig:
		res := execq.Busy
		if a.homer.Execute() {
			res = execq.Done
		}
		err := a.SetPosition(a.homer.Position(), a.homer.Velocity(), a.homer.Acceleration())
		if res == execq.Done && err == nil {
			if err = a.SetHomePosition(h.pos - h.finalPos); err == nil {
				a.log.Info("homing complete, home position %f", a.homePos)
				if a.obs != nil {
					a.obs.Homed(a, a.homePos)
				}
			}
		}
		return res, err
	}

	a.homer.Execute()
	return execq.Busy, a.SetPosition(a.homer.Position(), a.homer.Velocity(), a.homer.Acceleration())
}
