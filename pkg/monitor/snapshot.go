// Package monitor publishes axis state to websocket clients.
//
// State is captured on the tick goroutine into immutable snapshots; the
// websocket side only ever reads the latest snapshot.
package monitor

import (
	"time"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/safety"
	"plcmotion/pkg/scheduler"
)

// AxisState is the reported state of one axis.
type AxisState struct {
	ID        int32  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	ErrorCode uint32 `json:"error_code"`
	DevError  uint32 `json:"dev_error"`
	Powered   bool   `json:"powered"`
	Busy      bool   `json:"busy"`
	Queue     int    `json:"queue"`

	// Position is the command position in user units
	Position     float64 `json:"position"`
	CmdPosition  float64 `json:"cmd_position"`
	CmdVelocity  float64 `json:"cmd_velocity"`
	CmdAccel     float64 `json:"cmd_acceleration"`
	ActPosition  float64 `json:"act_position"`
	ActVelocity  float64 `json:"act_velocity"`
	HomePosition float64 `json:"home_position"`
}

// Snapshot is the state of every axis at one tick.
type Snapshot struct {
	Tick   uint32         `json:"tick"`
	Time   time.Time      `json:"time"`
	Axes   []AxisState    `json:"axes"`
	Safety *safety.Status `json:"safety,omitempty"`
}

// CaptureAxis reads the state of a. It must run on the tick goroutine.
func CaptureAxis(a *axis.Axis) AxisState {
	return AxisState{
		ID:           a.ID(),
		Name:         a.Name(),
		Status:       a.Status().String(),
		Error:        a.ErrorCode().Name(),
		ErrorCode:    uint32(a.ErrorCode()),
		DevError:     uint32(a.DevErrorCode()),
		Powered:      a.PowerStatus(),
		Busy:         a.Busy(),
		Queue:        a.Remaining(),
		Position:     a.UserPosition(),
		CmdPosition:  a.CmdPosition(),
		CmdVelocity:  a.CmdVelocity(),
		CmdAccel:     a.CmdAcceleration(),
		ActPosition:  a.ActPosition(),
		ActVelocity:  a.ActVelocity(),
		HomePosition: a.HomePosition(),
	}
}

// Capture reads every axis of s. It must run on the tick goroutine.
func Capture(s *scheduler.Scheduler) *Snapshot {
	axes := s.Axes()
	snap := &Snapshot{
		Tick: s.Tick(),
		Time: time.Now(),
		Axes: make([]AxisState, 0, len(axes)),
	}
	for _, a := range axes {
		snap.Axes = append(snap.Axes, CaptureAxis(a))
	}
	return snap
}

// Axis returns the state of axis id.
func (s *Snapshot) Axis(id int32) (AxisState, bool) {
	for _, a := range s.Axes {
		if a.ID == id {
			return a, true
		}
	}
	return AxisState{}, false
}

// filter returns a copy holding only the axes in ids. An empty set keeps all.
func (s *Snapshot) filter(ids map[int32]bool) *Snapshot {
	if len(ids) == 0 {
		return s
	}
	out := *s
	out.Axes = make([]AxisState, 0, len(ids))
	for _, a := range s.Axes {
		if ids[a.ID] {
			out.Axes = append(out.Axes, a)
		}
	}
	return &out
}
