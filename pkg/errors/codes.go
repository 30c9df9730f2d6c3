// Motion kernel error codes
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import "fmt"

// Code is a numeric motion error. The numeric values are stable and are
// reported verbatim through function-block ErrorID outputs. The zero value
// Good means success and must never be returned as a non-nil error.
type Code uint32

const (
	Good Code = 0x0

	QueueFull           Code = 0x1
	AxisEncoderOverflow Code = 0x2
	AxisPowerOff        Code = 0x3
	AxisPowerOn         Code = 0x4
	FrequencyIllegal    Code = 0x5
	AxisNotExist        Code = 0x8
	AxisBusy            Code = 0xA
	FailedToBuffer      Code = 0xF
	BlendingModeIllegal Code = 0x10
	ParameterNotSupport Code = 0x14
	OverrideIllegal     Code = 0x17
	ShiftingModeIllegal Code = 0x19
	SourceIllegal       Code = 0x1A
	ControlModeIllegal  Code = 0x23

	PosIllegal        Code = 0x100
	AccIllegal        Code = 0x101
	VelIllegal        Code = 0x102
	AxisHardware      Code = 0x103
	VelLimitTooLow    Code = 0x104
	EndVelCannotReach Code = 0x105
	CmdPPosOverLimit  Code = 0x106
	CmdNPosOverLimit  Code = 0x107
	ForbiddenPPosMove Code = 0x108
	ForbiddenNPosMove Code = 0x109
	PosLagOverLimit   Code = 0x10A
	CmdVelOverLimit   Code = 0x10B
	CmdAccOverLimit   Code = 0x10C
	PosInfinity       Code = 0x10E

	SoftwareEmgs  Code = 0x1EE
	SystemEmgs    Code = 0x1EF
	Communication Code = 0x1F0

	CfgAxisIDIllegal       Code = 0x201
	CfgUnitRatioOutOfRange Code = 0x202
	CfgControlModeIllegal  Code = 0x203
	CfgVelLimitIllegal     Code = 0x204
	CfgAccLimitIllegal     Code = 0x205
	CfgPosLagIllegal       Code = 0x206
	CfgPosKpIllegal        Code = 0x207
	CfgFeedForwardIllegal  Code = 0x208
	CfgModuloIllegal       Code = 0x209

	HomingVelIllegal    Code = 0x210
	HomingAccIllegal    Code = 0x211
	HomingSignalIllegal Code = 0x212
	HomingModeIllegal   Code = 0x214
	HomePositionIllegal Code = 0x215

	AxisDisabled           Code = 0x500
	AxisStandstill         Code = 0x501
	AxisHoming             Code = 0x502
	AxisDiscreteMotion     Code = 0x503
	AxisContinuousMotion   Code = 0x504
	AxisSynchronizedMotion Code = 0x505
	AxisStopping           Code = 0x506
	AxisErrorStop          Code = 0x507
)

// statusBase is the code of the first axis status mirror.
const statusBase = AxisDisabled

var codeNames = map[Code]string{
	Good:                   "GOOD",
	QueueFull:              "QUEUEFULL",
	AxisEncoderOverflow:    "AXISENCODEROVERFLOW",
	AxisPowerOff:           "AXISPOWEROFF",
	AxisPowerOn:            "AXISPOWERON",
	FrequencyIllegal:       "FREQUENCYILLEGAL",
	AxisNotExist:           "AXISNOTEXIST",
	AxisBusy:               "AXISBUSY",
	FailedToBuffer:         "FAILEDTOBUFFER",
	BlendingModeIllegal:    "BLENDINGMODEILLEGAL",
	ParameterNotSupport:    "PARAMETERNOTSUPPORT",
	OverrideIllegal:        "OVERRIDEILLEGAL",
	ShiftingModeIllegal:    "SHIFTINGMODEILLEGAL",
	SourceIllegal:          "SOURCEILLEGAL",
	ControlModeIllegal:     "CONTROLMODEILLEGAL",
	PosIllegal:             "POSILLEGAL",
	AccIllegal:             "ACCILLEGAL",
	VelIllegal:             "VELILLEGAL",
	AxisHardware:           "AXISHARDWARE",
	VelLimitTooLow:         "VELLIMITTOOLOW",
	EndVelCannotReach:      "ENDVELCANNOTREACH",
	CmdPPosOverLimit:       "CMDPPOSOVERLIMIT",
	CmdNPosOverLimit:       "CMDNPOSOVERLIMIT",
	ForbiddenPPosMove:      "FORBIDDENPPOSMOVE",
	ForbiddenNPosMove:      "FORBIDDENNPOSMOVE",
	PosLagOverLimit:        "POSLAGOVERLIMIT",
	CmdVelOverLimit:        "CMDVELOVERLIMIT",
	CmdAccOverLimit:        "CMDACCOVERLIMIT",
	PosInfinity:            "POSINFINITY",
	SoftwareEmgs:           "SOFTWAREEMGS",
	SystemEmgs:             "SYSTEMEMGS",
	Communication:          "COMMUNICATION",
	CfgAxisIDIllegal:       "CFGAXISIDILLEGAL",
	CfgUnitRatioOutOfRange: "CFGUNITRATIOOUTOFRANGE",
	CfgControlModeIllegal:  "CFGCONTROLMODEILLEGAL",
	CfgVelLimitIllegal:     "CFGVELLIMITILLEGAL",
	CfgAccLimitIllegal:     "CFGACCLIMITILLEGAL",
	CfgPosLagIllegal:       "CFGPOSLAGILLEGAL",
	CfgPosKpIllegal:        "CFGPKPILLEGAL",
	CfgFeedForwardIllegal:  "CFGFEEDFORWARDILLEGAL",
	CfgModuloIllegal:       "CFGMODULOILLEGAL",
	HomingVelIllegal:       "HOMINGVELILLEGAL",
	HomingAccIllegal:       "HOMINGACCILLEGAL",
	HomingSignalIllegal:    "HOMINGSIGILLEGAL",
	HomingModeIllegal:      "HOMINGMODEILLEGAL",
	HomePositionIllegal:    "HOMEPOSITIONILLEGAL",
	AxisDisabled:           "AXISDISABLED",
	AxisStandstill:         "AXISSTANDSTILL",
	AxisHoming:             "AXISHOMING",
	AxisDiscreteMotion:     "AXISDISCRETEMOTION",
	AxisContinuousMotion:   "AXISCONTINUOUSMOTION",
	AxisSynchronizedMotion: "AXISSYNCHRONIZEDMOTION",
	AxisStopping:           "AXISSTOPPING",
	AxisErrorStop:          "AXISERRORSTOP",
}

// Group classifies a code by its numeric range.
type Group int

const (
	GroupNone Group = iota
	GroupRequest
	GroupRuntime
	GroupSafety
	GroupConfig
	GroupStatus
	GroupUnknown
)

func (g Group) String() string {
	switch g {
	case GroupNone:
		return "none"
	case GroupRequest:
		return "request"
	case GroupRuntime:
		return "runtime"
	case GroupSafety:
		return "safety"
	case GroupConfig:
		return "config"
	case GroupStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (c Code) Error() string {
	return fmt.Sprintf("motion error 0x%x (%s)", uint32(c), c.Name())
}

// Name returns the symbolic name of the code.
func (c Code) Name() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Group returns the range the code belongs to.
func (c Code) Group() Group {
	switch {
	case c == Good:
		return GroupNone
	case c < 0x100:
		return GroupRequest
	case c < 0x1EE:
		return GroupRuntime
	case c < 0x200:
		return GroupSafety
	case c < 0x300:
		return GroupConfig
	case c >= 0x500 && c <= 0x507:
		return GroupStatus
	default:
		return GroupUnknown
	}
}

// FromStatus returns the code mirroring an axis status ordinal.
func FromStatus(status int) Code {
	return statusBase + Code(status)
}

// Err converts a code into an error value, mapping Good to nil.
func (c Code) Err() error {
	if c == Good {
		return nil
	}
	return c
}
