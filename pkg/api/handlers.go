// Command API handlers
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/config"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/monitor"
	"plcmotion/pkg/reactor"
)

func axisID(r *http.Request) (int32, error) {
	raw := chi.URLParam(r, "axis")
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid axis id %q", raw)
	}
	return int32(id), nil
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// call runs fn on the reactor goroutine with the axis of the request.
func (s *Server) call(ctx context.Context, id int32, fn func(a *axis.Axis) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()
	sched := s.cfg.Reactor.Scheduler()
	return s.cfg.Reactor.Call(ctx, func() error {
		a := sched.Axis(id)
		if a == nil {
			return errors.AxisNotExist
		}
		return fn(a)
	})
}

// callUntilDone repeats step once per tick until it reports done.
func (s *Server) callUntilDone(ctx context.Context, id int32, step func(a *axis.Axis) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CommandTimeout)
	defer cancel()
	sched := s.cfg.Reactor.Scheduler()
	for {
		var done bool
		err := s.cfg.Reactor.Call(ctx, func() error {
			a := sched.Axis(id)
			if a == nil {
				return errors.AxisNotExist
			}
			var err error
			done, err = step(a)
			return err
		})
		if err != nil || done {
			return err
		}
	}
}

// writeFailure maps an axis or reactor error to a response.
func (s *Server) writeFailure(w http.ResponseWriter, id int32, op string, err error) {
	if c, ok := errors.CodeOf(err); ok {
		status := http.StatusConflict
		switch {
		case c == errors.AxisNotExist:
			status = http.StatusNotFound
		case c.Group() == errors.GroupConfig:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorBody{
			Error:   c.Name(),
			Code:    uint32(c),
			Message: errors.Motion(int(id), op, c).Error(),
		})
		return
	}
	switch {
	case stderrors.Is(err, reactor.ErrQueueFull), stderrors.Is(err, reactor.ErrReactorClosed):
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
	case stderrors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "TIMEOUT", op+" timed out")
	default:
		s.log.WithField("op", op).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// --- Read routes ---

func (s *Server) listAxes(w http.ResponseWriter, r *http.Request) {
	var states []monitor.AxisState
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.CommandTimeout)
	defer cancel()
	err := s.cfg.Reactor.Call(ctx, func() error {
		states = monitor.Capture(s.cfg.Reactor.Scheduler()).Axes
		return nil
	})
	if err != nil {
		s.writeFailure(w, -1, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) getAxis(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var st monitor.AxisState
	if err := s.call(r.Context(), id, func(a *axis.Axis) error {
		st = monitor.CaptureAxis(a)
		return nil
	}); err != nil {
		s.writeFailure(w, id, "read", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type rangeLimitBody struct {
	SwLimitPositive bool    `json:"sw_limit_positive"`
	SwLimitNegative bool    `json:"sw_limit_negative"`
	LimitPositive   float64 `json:"limit_positive"`
	LimitNegative   float64 `json:"limit_negative"`
}

func rangeLimitBodyOf(rl axis.RangeLimitInfo) rangeLimitBody {
	return rangeLimitBody(rl)
}

func (b rangeLimitBody) config() config.RangeLimitConfig {
	return config.RangeLimitConfig(b)
}

func (s *Server) getRangeLimit(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var rl axis.RangeLimitInfo
	if err := s.call(r.Context(), id, func(a *axis.Axis) error {
		rl = a.RangeLimitInfo()
		return nil
	}); err != nil {
		s.writeFailure(w, id, "range_limit", err)
		return
	}
	writeJSON(w, http.StatusOK, rangeLimitBodyOf(rl))
}

func (s *Server) getSafety(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Safety == nil {
		writeError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "safety manager not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Safety.GetStatus())
}

func (s *Server) listFaults(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "store not configured")
		return
	}
	axisFilter, limit := int64(-1), 100
	if v := r.URL.Query().Get("axis"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid axis filter")
			return
		}
		axisFilter = n
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid limit")
			return
		}
		limit = n
	}
	faults, err := s.cfg.Store.ListFaults(int32(axisFilter), limit)
	if err != nil {
		s.writeFailure(w, -1, "faults", err)
		return
	}
	writeJSON(w, http.StatusOK, faults)
}

// --- Control routes ---

type powerRequest struct {
	On bool `json:"on"`
	// EnablePositive and EnableNegative default to true
	EnablePositive *bool `json:"enable_positive,omitempty"`
	EnableNegative *bool `json:"enable_negative,omitempty"`
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func (s *Server) power(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var req powerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	enPos, enNeg := boolOr(req.EnablePositive, true), boolOr(req.EnableNegative, true)
	err = s.callUntilDone(r.Context(), id, func(a *axis.Axis) (bool, error) {
		return a.SetPower(req.On, enPos, enNeg)
	})
	if err != nil {
		s.writeFailure(w, id, "power", err)
		return
	}
	s.getAxis(w, r)
}

func (s *Server) resetAxis(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.callUntilDone(r.Context(), id, (*axis.Axis).ResetError); err != nil {
		s.writeFailure(w, id, "reset", err)
		return
	}
	s.getAxis(w, r)
}

type moveRequest struct {
	Position     float64 `json:"position"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Deceleration float64 `json:"deceleration"`
	Jerk         float64 `json:"jerk"`
	// EndVelocity queues a continuous move when set
	EndVelocity *float64 `json:"end_velocity,omitempty"`
	// Mode is absolute, relative or additive
	Mode      string `json:"mode,omitempty"`
	Direction int    `json:"direction,omitempty"`
	Buffer    int    `json:"buffer,omitempty"`
	ID        int32  `json:"id,omitempty"`
}

func parseShift(mode string) (axis.ShiftingMode, error) {
	switch strings.ToLower(mode) {
	case "", "absolute":
		return axis.Absolute, nil
	case "relative":
		return axis.Relative, nil
	case "additive":
		return axis.Additive, nil
	}
	return 0, fmt.Errorf("unknown mode %q", mode)
}

type velocityRequest struct {
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	Deceleration float64 `json:"deceleration"`
	Jerk         float64 `json:"jerk"`
	Buffer       int     `json:"buffer,omitempty"`
	ID           int32   `json:"id,omitempty"`
}

type haltRequest struct {
	Deceleration float64 `json:"deceleration"`
	Jerk         float64 `json:"jerk"`
	Buffer       int     `json:"buffer,omitempty"`
	ID           int32   `json:"id,omitempty"`
}

type homeRequest struct {
	Position float64 `json:"position"`
	Buffer   int     `json:"buffer,omitempty"`
	ID       int32   `json:"id,omitempty"`
}

type positionRequest struct {
	Position float64 `json:"position"`
}

// queued handles a request that adds one command to an axis queue. With
// ?wait=true the response is sent when the command finishes.
func (s *Server) queued(w http.ResponseWriter, r *http.Request, op string, body any, add func(a *axis.Axis, c axis.Caller) error) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if body != nil {
		if err := decode(r, body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	var t *tracker
	// A nil caller is valid: axis nodes skip notifications when none is set.
	var caller axis.Caller
	if wait {
		t = newTracker()
		caller = t
	}
	if err := s.call(r.Context(), id, func(a *axis.Axis) error { return add(a, caller) }); err != nil {
		s.writeFailure(w, id, op, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, map[string]any{"axis": id, "op": op, "queued": true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.WaitTimeout)
	defer cancel()
	res, err := t.wait(ctx)
	if err != nil {
		s.writeFailure(w, id, op, err)
		return
	}
	if res.code != errors.Good {
		s.writeFailure(w, id, op, res.code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"axis": id, "op": op, "result": res.outcome})
}

func (s *Server) move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	s.queued(w, r, "move", &req, func(a *axis.Axis, c axis.Caller) error {
		shift, err := parseShift(req.Mode)
		if err != nil {
			return errors.ShiftingModeIllegal
		}
		opt := axis.MoveOpts{
			Shift:    shift,
			Dir:      axis.Direction(req.Direction),
			Buffer:   axis.BufferMode(req.Buffer),
			CustomID: req.ID,
		}
		if req.EndVelocity != nil {
			return a.AddMovePosCont(c, req.Position, req.Velocity, req.Acceleration, req.Deceleration, *req.EndVelocity, req.Jerk, opt)
		}
		return a.AddMovePos(c, req.Position, req.Velocity, req.Acceleration, req.Deceleration, req.Jerk, opt)
	})
}

func (s *Server) velocity(w http.ResponseWriter, r *http.Request) {
	var req velocityRequest
	s.queued(w, r, "velocity", &req, func(a *axis.Axis, c axis.Caller) error {
		return a.AddMoveVel(c, req.Velocity, req.Acceleration, req.Deceleration, req.Jerk, axis.BufferMode(req.Buffer), req.ID)
	})
}

func (s *Server) halt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	s.queued(w, r, "halt", &req, func(a *axis.Axis, c axis.Caller) error {
		return a.AddHalt(c, req.Deceleration, req.Jerk, axis.BufferMode(req.Buffer), req.ID)
	})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	s.queued(w, r, "stop", &req, func(a *axis.Axis, c axis.Caller) error {
		return a.AddStop(c, req.Deceleration, req.Jerk, req.ID)
	})
}

func (s *Server) releaseStop(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if err := s.call(r.Context(), id, func(a *axis.Axis) error {
		a.CancelStopLater()
		return nil
	}); err != nil {
		s.writeFailure(w, id, "stop", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	var req homeRequest
	s.queued(w, r, "home", &req, func(a *axis.Axis, c axis.Caller) error {
		return a.AddHoming(c, req.Position, axis.BufferMode(req.Buffer), req.ID)
	})
}

func (s *Server) setHomePosition(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var req positionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	sched := s.cfg.Reactor.Scheduler()
	if err := s.call(r.Context(), id, func(a *axis.Axis) error {
		return sched.SetAxisHomePosition(a, req.Position)
	}); err != nil {
		s.writeFailure(w, id, "home_position", err)
		return
	}
	if s.cfg.Store != nil {
		if err := s.cfg.Store.SaveHomePosition(id, req.Position); err != nil {
			s.writeFailure(w, id, "home_position", err)
			return
		}
	}
	s.getAxis(w, r)
}

func (s *Server) setRangeLimit(w http.ResponseWriter, r *http.Request) {
	id, err := axisID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	var req rangeLimitBody
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	ax := config.AxisConfig{RangeLimit: req.config()}
	if err := s.call(r.Context(), id, func(a *axis.Axis) error {
		return a.SetRangeLimitInfo(ax.RangeLimitInfo())
	}); err != nil {
		s.writeFailure(w, id, "range_limit", err)
		return
	}
	if s.cfg.Settings != nil {
		err := s.cfg.Settings.SetRangeLimit(id, req.config())
		if err == nil {
			err = s.cfg.Settings.Save()
		}
		if err != nil {
			s.log.WithField("axis", id).WithError(err).Warn("range limit applied but not saved")
		}
	}
	writeJSON(w, http.StatusOK, req)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) emergencyStop(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Safety == nil {
		writeError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "safety manager not configured")
		return
	}
	var req messageRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
	}
	if req.Message == "" {
		req.Message = "requested over api"
	}
	if c, ok := ClaimsFrom(r.Context()); ok {
		req.Message += " by " + c.Subject
	}
	s.cfg.Safety.EmergencyStop(req.Message)
	writeJSON(w, http.StatusOK, s.cfg.Safety.GetStatus())
}

func (s *Server) resetSafety(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Safety == nil {
		writeError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "safety manager not configured")
		return
	}
	if err := s.cfg.Safety.Reset(); err != nil {
		writeError(w, http.StatusConflict, "RESET_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Safety.GetStatus())
}

func (s *Server) clearFaults(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, "NOT_CONFIGURED", "store not configured")
		return
	}
	n, err := s.cfg.Store.ClearFaults()
	if err != nil {
		s.writeFailure(w, -1, "faults", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}
