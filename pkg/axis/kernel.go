// Axis position loop and drive handshakes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

import (
	"math"

	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
	"plcmotion/pkg/profile"
)

const (
	rawHalfRange = 2147483648.0
	rawFullRange = 4294967296.0
)

func isFinite(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) }

// toSys converts raw device units to engineering units.
func (a *Axis) toSys(x float64) float64 { return x / a.metric.DevUnitRatio }

// toRaw converts to raw units, wrapping like a 32 bit encoder.
func (a *Axis) toRaw(x float64) int32 {
	return int32(int64(x * a.metric.DevUnitRatio))
}

// encoderRange returns half and full raw encoder range in engineering
// units.
func (a *Axis) encoderRange() (half, full float64) {
	return math.Abs(a.toSys(rawHalfRange)), math.Abs(a.toSys(rawFullRange))
}

func (a *Axis) wrapRange(p float64) float64 {
	half, full := a.encoderRange()
	if p >= half {
		return p - full
	}
	if p < -half {
		return p + full
	}
	return p
}

func (a *Axis) positionLoop() {
	if a.errCode != errors.Good || !a.PowerStatus() {
		return
	}

	calVel := (a.submitPos - a.cmdPos) * a.frequency()
	switch {
	case calVel > 0 && !a.enPos:
		a.EmergencyStop(errors.ForbiddenPPosMove)
		return
	case calVel < 0 && !a.enNeg:
		a.EmergencyStop(errors.ForbiddenNPosMove)
		return
	}
	if profile.IsGt(math.Abs(calVel), a.motionLimit.VelLimit) {
		a.EmergencyStop(errors.CmdVelOverLimit)
		return
	}
	rl := &a.rangeLimit
	if rl.SwLimitPositive && rl.LimitPositive < a.SysPosToUser(a.submitPos) && calVel > 0 {
		a.EmergencyStop(errors.CmdPPosOverLimit)
		return
	}
	if rl.SwLimitNegative && rl.LimitNegative > a.SysPosToUser(a.submitPos) && calVel < 0 {
		a.EmergencyStop(errors.CmdNPosOverLimit)
		return
	}

	a.cmdPos = a.submitPos
	a.calVel = calVel

	half, full := a.encoderRange()
	switch {
	case a.cmdPos >= half:
		a.overflowOffset = -full
	case a.cmdPos < -half:
		a.overflowOffset = full
	default:
		a.overflowOffset = 0
	}
	if a.overflowOffset != 0 {
		a.onPositionOffset(a.overflowOffset)
		a.cmdPos += a.overflowOffset
	}

	if a.control.Mode != VelOpenLoop {
		diff := math.Abs(a.cmdPos - a.ActPosition())
		if profile.IsGt(diff, a.motionLimit.PosLagLimit) {
			// the drive may not have wrapped yet
			diff = math.Abs(diff - full)
			if profile.IsGt(diff, a.motionLimit.PosLagLimit) {
				a.EmergencyStop(errors.PosLagOverLimit)
				return
			}
		}
	}
	a.sendCommand()
}

func (a *Axis) maintainServo() {
	if a.needReset {
		if a.errCode != errors.Good {
			code, done := a.dev.ResetError()
			switch {
			case code != 0:
				a.devErr = code
				a.needReset = false
			case done:
				a.devErr = 0
				a.errCode = errors.Good
				a.needReset = false
				a.log.Info("error reset")
			}
		} else {
			a.needReset = false
		}
	}

	switch {
	case a.errCode == errors.Good && !a.powerValid:
		if a.powerReq {
			a.cmdVel, a.cmdAcc = 0, 0
			a.cmdPos = a.ActPosition()
			a.submitPos = a.cmdPos
			a.sendCommand()
			if a.errCode != errors.Good {
				return
			}
		}
		code, done := a.dev.SetPower(a.powerReq)
		a.devErr = code
		if code != 0 {
			a.EmergencyStop(errors.AxisHardware)
		} else if done {
			if a.powerReq {
				a.log.Info("power on")
			} else {
				a.log.Info("power off")
			}
			a.powerValid = true
			a.onPowerChanged(a.powerReq)
		}
	case !a.powerReq && a.powerValid:
		a.cmdPos = a.ActPosition()
		a.cmdVel = a.ActVelocity()
		a.cmdAcc = a.ActAcceleration()
	}
}

// sendCommand writes the command for the configured control mode.
func (a *Axis) sendCommand() {
	posFF := a.cmdPos + a.control.FeedForward*0.01*a.cmdVel
	switch a.control.Mode {
	case PosOpenLoop:
		a.devErr = a.dev.SetPos(a.toRaw(posFF))
	case VelCloseLoop:
		raw := a.toRaw(posFF) - a.dev.Pos()
		a.devErr = a.dev.SetVel(int32(float64(raw) * a.control.Kp))
	case VelOpenLoop:
		a.devErr = a.dev.SetVel(a.toRaw(a.cmdVel))
	}
	if a.devErr != 0 {
		a.EmergencyStop(errors.AxisHardware)
	}
}

// SetPower requests the drive power state. done reports that the drive is
// already in the requested state; otherwise the request completes on a
// later tick. enPos and enNeg enable motion in each direction.
func (a *Axis) SetPower(on, enPos, enNeg bool) (done bool, err error) {
	if a.errCode != errors.Good {
		return false, a.errCode
	}
	if a.powerValid && a.powerReq == on {
		return true, nil
	}
	a.powerReq = on
	a.enPos = enPos
	a.enNeg = enNeg
	a.powerValid = false
	return false, nil
}

// EmergencyStop latches code, freezes the command and flushes the queue.
// Only the first error is kept until reset.
func (a *Axis) EmergencyStop(code errors.Code) {
	if a.errCode != errors.Good || code == errors.Good {
		return
	}
	a.errCode = code
	a.cmdVel, a.cmdAcc = 0, 0
	a.submitPos = a.cmdPos
	a.overflowOffset = 0
	a.powerValid = false
	a.needReset = false
	a.dev.EmergStop()
	a.log.WithFields(log.Fields{"code": code.Name(), "dev_code": a.devErr}).
		Warnf("emergency stop 0x%x", uint32(code))
	a.onError(code)
}

// ResetError requests a fault reset. done is true when there is nothing to
// reset; otherwise the error clears once the drive confirms its own reset.
func (a *Axis) ResetError() (done bool, err error) {
	if a.errCode == errors.Good {
		return true, nil
	}
	a.needReset = true
	return false, nil
}

// SetPosition submits the command for the next position loop pass.
func (a *Axis) SetPosition(pos, vel, acc float64) error {
	if a.errCode != errors.Good {
		return a.errCode
	}
	if !a.PowerStatus() {
		return errors.AxisPowerOff
	}
	if !isFinite(pos) {
		a.EmergencyStop(errors.PosInfinity)
		return a.errCode
	}
	a.submitPos = pos
	a.cmdVel = vel
	a.cmdAcc = acc
	return nil
}

func (a *Axis) MetricInfo() MetricInfo           { return a.metric }
func (a *Axis) RangeLimitInfo() RangeLimitInfo   { return a.rangeLimit }
func (a *Axis) MotionLimitInfo() MotionLimitInfo { return a.motionLimit }
func (a *Axis) ControlInfo() ControlInfo         { return a.control }
func (a *Axis) HomePosition() float64            { return a.homePos }

// SetMetricInfo is rejected while powered or faulted.
func (a *Axis) SetMetricInfo(info MetricInfo) error {
	if a.PowerStatus() {
		return errors.AxisPowerOn
	}
	if a.errCode != errors.Good {
		return a.errCode
	}
	r := math.Abs(info.DevUnitRatio)
	if r < 1 || r > 1048576 || !isFinite(info.DevUnitRatio) {
		return errors.CfgUnitRatioOutOfRange
	}
	if info.Modulo < 0 || !isFinite(info.Modulo) {
		return errors.CfgModuloIllegal
	}
	a.metric = info
	return nil
}

// SetRangeLimitInfo is accepted in any state.
func (a *Axis) SetRangeLimitInfo(info RangeLimitInfo) error {
	a.rangeLimit = info
	return nil
}

func (a *Axis) SetMotionLimitInfo(info MotionLimitInfo) error {
	if a.PowerStatus() {
		return errors.AxisPowerOn
	}
	switch {
	case info.VelLimit <= 0 || !isFinite(info.VelLimit):
		return errors.CfgVelLimitIllegal
	case info.AccLimit <= 0 || !isFinite(info.AccLimit):
		return errors.CfgAccLimitIllegal
	case info.PosLagLimit <= 0 || !isFinite(info.PosLagLimit):
		return errors.CfgPosLagIllegal
	}
	a.motionLimit = info
	return nil
}

func (a *Axis) SetControlInfo(info ControlInfo) error {
	if a.PowerStatus() {
		return errors.AxisPowerOn
	}
	if a.errCode != errors.Good {
		return a.errCode
	}
	if info.Kp < 0 || !isFinite(info.Kp) {
		return errors.CfgPosKpIllegal
	}
	if info.FeedForward < 0 || !isFinite(info.FeedForward) {
		return errors.CfgFeedForwardIllegal
	}
	switch info.Mode {
	case PosOpenLoop, VelCloseLoop, VelOpenLoop:
	default:
		return errors.ControlModeIllegal
	}
	a.control = info
	return nil
}

// SetHomePosition sets the offset added to system positions, wrapped into
// the encoder range.
func (a *Axis) SetHomePosition(homePos float64) error {
	if !isFinite(homePos) {
		return errors.HomePositionIllegal
	}
	homePos = a.wrapRange(homePos)
	a.log.Debug("home position %f, previous %f, diff %f", homePos, a.homePos, homePos-a.homePos)
	a.homePos = homePos
	return nil
}
