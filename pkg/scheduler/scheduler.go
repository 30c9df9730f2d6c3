// Axis scheduler
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package scheduler owns the axes of one motion kernel and advances them
// together, one tick per RunCycle call.
package scheduler

import (
	"sort"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
	"plcmotion/pkg/servo"
)

// DefaultFrequency is the tick rate of a new scheduler, in Hz.
const DefaultFrequency = 1000.0

// Scheduler is the tick source of its axes. Like the axes it drives it is
// owned by a single goroutine.
type Scheduler struct {
	freq  float64
	tick  uint32
	axes  map[int32]*axis.Axis
	order []*axis.Axis
	obs   axis.Observer
	log   *log.Logger
}

// New returns an empty scheduler running at DefaultFrequency.
func New() *Scheduler {
	return &Scheduler{
		freq: DefaultFrequency,
		axes: make(map[int32]*axis.Axis),
		log:  log.GetLogger("scheduler"),
	}
}

// Frequency returns the tick rate in Hz.
func (s *Scheduler) Frequency() float64 { return s.freq }

// Tick returns the number of completed cycles. It wraps at 2^32.
func (s *Scheduler) Tick() uint32 { return s.tick }

// SetFrequency changes the tick rate. It is only allowed before the
// first axis is created.
func (s *Scheduler) SetFrequency(freq float64) error {
	if !(freq > 0) {
		return errors.FrequencyIllegal
	}
	if len(s.order) > 0 {
		return errors.AxisBusy
	}
	s.freq = freq
	s.log.Info("frequency %g Hz", freq)
	return nil
}

// SetObserver installs o on every present and future axis.
func (s *Scheduler) SetObserver(o axis.Observer) {
	s.obs = o
	for _, a := range s.order {
		a.SetObserver(o)
	}
}

// NewAxis creates an axis driving dev, or a simulated drive when dev is
// nil. It returns nil when id is taken.
func (s *Scheduler) NewAxis(id int32, dev servo.Device) *axis.Axis {
	if _, ok := s.axes[id]; ok {
		s.log.Warn("axis %d already exists", id)
		return nil
	}
	a := axis.New(id, dev, s)
	if s.obs != nil {
		a.SetObserver(s.obs)
	}
	s.axes[id] = a
	s.order = append(s.order, a)
	sort.Slice(s.order, func(i, j int) bool { return s.order[i].ID() < s.order[j].ID() })
	return a
}

// Axis returns the axis with id, or nil.
func (s *Scheduler) Axis(id int32) *axis.Axis { return s.axes[id] }

// Axes returns every axis ordered by id. The slice must not be modified.
func (s *Scheduler) Axes() []*axis.Axis { return s.order }

// SetAxisConfig applies cfg section by section and stops at the first
// rejected section.
func (s *Scheduler) SetAxisConfig(a *axis.Axis, cfg axis.Config) error {
	if a == nil {
		return errors.AxisNotExist
	}
	if err := a.SetControlInfo(cfg.Control); err != nil {
		return err
	}
	if err := a.SetMetricInfo(cfg.Metric); err != nil {
		return err
	}
	if err := a.SetMotionLimitInfo(cfg.MotionLimit); err != nil {
		return err
	}
	if err := a.SetRangeLimitInfo(cfg.RangeLimit); err != nil {
		return err
	}
	return a.SetHomingInfo(cfg.Homing)
}

// SetAxisHomePosition sets the home offset of a.
func (s *Scheduler) SetAxisHomePosition(a *axis.Axis, homePos float64) error {
	if a == nil {
		return errors.AxisNotExist
	}
	return a.SetHomePosition(homePos)
}

// RunCycle advances every axis by one tick in id order.
func (s *Scheduler) RunCycle() {
	for _, a := range s.order {
		a.RunCycle()
	}
	s.tick++
}
