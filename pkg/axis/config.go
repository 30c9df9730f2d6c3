// Axis configuration
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package axis

// ControlMode selects the command sent to the drive each tick.
type ControlMode int

const (
	// PosOpenLoop sends the raw target position.
	PosOpenLoop ControlMode = iota
	// VelCloseLoop sends Kp times the raw following error.
	VelCloseLoop
	// VelOpenLoop sends the raw command velocity.
	VelOpenLoop
)

func (m ControlMode) String() string {
	switch m {
	case PosOpenLoop:
		return "pos_open_loop"
	case VelCloseLoop:
		return "vel_close_loop"
	case VelOpenLoop:
		return "vel_open_loop"
	default:
		return "unknown"
	}
}

// HomingMode selects search direction and trigger edge.
type HomingMode int

const (
	// HomingDirect takes the current position as home.
	HomingDirect HomingMode = 1000
	// HomingMode5 searches negative, regresses positive, rising edge.
	HomingMode5 HomingMode = 1005
	// HomingMode6 searches negative, regresses positive, falling edge.
	HomingMode6 HomingMode = 1006
	// HomingMode7 searches positive, regresses negative, rising edge.
	HomingMode7 HomingMode = 1007
	// HomingMode8 searches positive, regresses negative, falling edge.
	HomingMode8 HomingMode = 1008
)

// Direction resolves the target of an absolute move on a modulo axis.
type Direction int

const (
	DirectionPositive Direction = 1
	DirectionShortest Direction = 2
	DirectionNegative Direction = 3
	DirectionCurrent  Direction = 4
)

// BufferMode controls how a new command joins the queue.
type BufferMode int

const (
	// Aborting discards every queued command first.
	Aborting BufferMode = 0
	// Buffered starts after the last queued command.
	Buffered         BufferMode = 1
	BlendingLow      BufferMode = 2
	BlendingPrevious BufferMode = 3
	BlendingNext     BufferMode = 4
	BlendingHigh     BufferMode = 5
)

// ShiftingMode interprets the position of a move.
type ShiftingMode int

const (
	Absolute ShiftingMode = 0
	Relative ShiftingMode = 1
	Additive ShiftingMode = 2
)

// Source selects commanded or measured values.
type Source int

const (
	SetValue    Source = 0
	ActualValue Source = 1
)

// MetricInfo maps raw device units to engineering units.
type MetricInfo struct {
	// DevUnitRatio is raw units per engineering unit.
	DevUnitRatio float64
	// Modulo is the period of a rotary axis; zero for linear axes.
	Modulo float64
}

// RangeLimitInfo holds software travel limits in user units.
type RangeLimitInfo struct {
	SwLimitPositive bool
	SwLimitNegative bool
	LimitPositive   float64
	LimitNegative   float64
}

// MotionLimitInfo bounds commanded motion.
type MotionLimitInfo struct {
	VelLimit    float64
	AccLimit    float64
	PosLagLimit float64
}

// ControlInfo configures the device command.
type ControlInfo struct {
	Mode ControlMode
	Kp   float64
	// FeedForward is the velocity feed forward in percent.
	FeedForward float64
}

// Signal is a byte wide digital input register.
type Signal interface {
	Byte() uint8
}

// HomingInfo configures the homing sequence.
type HomingInfo struct {
	Signal        Signal
	SignalBit     uint8
	Mode          HomingMode
	VelSearch     float64
	VelRegression float64
	Acc           float64
	Jerk          float64
}

// Config bundles every axis parameter block.
type Config struct {
	Metric      MetricInfo
	RangeLimit  RangeLimitInfo
	MotionLimit MotionLimitInfo
	Control     ControlInfo
	Homing      HomingInfo
}

// DefaultConfig returns the parameters of a fresh axis.
func DefaultConfig() Config {
	return Config{
		Metric:      MetricInfo{DevUnitRatio: 8192},
		MotionLimit: MotionLimitInfo{VelLimit: 1000, AccLimit: 5000, PosLagLimit: 150},
		Control:     ControlInfo{Mode: PosOpenLoop, Kp: 10},
		Homing:      HomingInfo{Mode: HomingDirect},
	}
}
