package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestCodeValuesStable(t *testing.T) {
	tests := []struct {
		code Code
		want uint32
	}{
		{QueueFull, 0x1},
		{AxisPowerOff, 0x3},
		{FailedToBuffer, 0xF},
		{ShiftingModeIllegal, 0x19},
		{ControlModeIllegal, 0x23},
		{PosLagOverLimit, 0x10A},
		{PosInfinity, 0x10E},
		{SoftwareEmgs, 0x1EE},
		{CfgModuloIllegal, 0x209},
		{HomePositionIllegal, 0x215},
		{AxisErrorStop, 0x507},
	}
	for _, tt := range tests {
		if uint32(tt.code) != tt.want {
			t.Errorf("%s = 0x%x, want 0x%x", tt.code.Name(), uint32(tt.code), tt.want)
		}
	}
}

func TestCodeGroup(t *testing.T) {
	tests := []struct {
		code Code
		want Group
	}{
		{Good, GroupNone},
		{QueueFull, GroupRequest},
		{AxisHardware, GroupRuntime},
		{SystemEmgs, GroupSafety},
		{Communication, GroupSafety},
		{CfgPosLagIllegal, GroupConfig},
		{HomingModeIllegal, GroupConfig},
		{AxisStopping, GroupStatus},
		{Code(0x400), GroupUnknown},
	}
	for _, tt := range tests {
		if got := tt.code.Group(); got != tt.want {
			t.Errorf("%s.Group() = %v, want %v", tt.code.Name(), got, tt.want)
		}
	}
}

func TestFromStatus(t *testing.T) {
	if got := FromStatus(0); got != AxisDisabled {
		t.Errorf("FromStatus(0) = %v", got)
	}
	if got := FromStatus(6); got != AxisStopping {
		t.Errorf("FromStatus(6) = %v", got)
	}
}

func TestCodeErr(t *testing.T) {
	if Good.Err() != nil {
		t.Error("Good.Err() should be nil")
	}
	if err := VelIllegal.Err(); err != VelIllegal {
		t.Errorf("VelIllegal.Err() = %v", err)
	}
	if !strings.Contains(VelIllegal.Error(), "VELILLEGAL") {
		t.Errorf("unexpected message %q", VelIllegal.Error())
	}
}

func TestMotionWrap(t *testing.T) {
	err := Motion(3, "move_absolute", AxisPowerOff)
	if !strings.Contains(err.Error(), "axis 3") {
		t.Errorf("message %q missing axis", err.Error())
	}
	wrapped := fmt.Errorf("api: %w", err)
	c, ok := CodeOf(wrapped)
	if !ok || c != AxisPowerOff {
		t.Errorf("CodeOf = %v, %v", c, ok)
	}
	if !Is(wrapped, ErrMotion) {
		t.Error("Is(ErrMotion) = false")
	}
}

func TestPredicates(t *testing.T) {
	if !IsConfig(CfgVelLimitIllegal) {
		t.Error("IsConfig(CfgVelLimitIllegal) = false")
	}
	if !IsConfig(ConfigOptionError("axes", "id", "missing")) {
		t.Error("IsConfig(ConfigOptionError) = false")
	}
	if !IsSafety(SoftwareEmgs) {
		t.Error("IsSafety(SoftwareEmgs) = false")
	}
	if !IsStatus(AxisHoming) {
		t.Error("IsStatus(AxisHoming) = false")
	}
	if !IsRuntime(PosLagOverLimit) {
		t.Error("IsRuntime(PosLagOverLimit) = false")
	}
	if IsSafety(fmt.Errorf("plain")) {
		t.Error("plain error classified as safety")
	}
}

func TestRecoverPanic(t *testing.T) {
	var got *HostError
	func() {
		defer func() { got = RecoverPanic(recover()) }()
		panic("boom")
	}()
	if got == nil || !strings.Contains(got.Error(), "boom") {
		t.Fatalf("RecoverPanic = %v", got)
	}
	if RecoverPanic(nil) != nil {
		t.Error("RecoverPanic(nil) should be nil")
	}
}
