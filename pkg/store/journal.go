// Axis event journal
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package store

import (
	"context"
	"sync"
	"sync/atomic"

	"plcmotion/pkg/axis"
	"plcmotion/pkg/errors"
	"plcmotion/pkg/log"
	"plcmotion/pkg/safety"
)

type eventKind int

const (
	eventFault eventKind = iota
	eventHomed
)

type event struct {
	kind eventKind
	axis int32
	code errors.Code
	msg  string
	pos  float64
}

// Journal writes axis events to the store from its own goroutine. The
// observer methods never block: events beyond the buffer are dropped and
// counted.
type Journal struct {
	store   *Store
	events  chan event
	dropped atomic.Uint64
	log     *log.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewJournal creates a journal buffering up to size events.
func NewJournal(s *Store, size int) *Journal {
	if size <= 0 {
		size = 256
	}
	return &Journal{
		store:  s,
		events: make(chan event, size),
		log:    log.GetLogger("journal"),
		done:   make(chan struct{}),
	}
}

func (j *Journal) push(e event) {
	select {
	case j.events <- e:
	default:
		j.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to a full buffer.
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }

// EmergencyStop implements axis.Observer.
func (j *Journal) EmergencyStop(a *axis.Axis, code errors.Code) {
	j.push(event{kind: eventFault, axis: a.ID(), code: code})
}

// PowerChanged implements axis.Observer.
func (j *Journal) PowerChanged(a *axis.Axis, on bool) {}

// Homed implements axis.Observer. The home position is persisted.
func (j *Journal) Homed(a *axis.Axis, homePos float64) {
	j.push(event{kind: eventHomed, axis: a.ID(), pos: homePos})
}

// Shutdown records a safety shutdown. It has the signature of a
// safety.Manager shutdown callback.
func (j *Journal) Shutdown(reason safety.ShutdownReason, msg string) {
	j.push(event{kind: eventFault, axis: -1, code: reason.Code(), msg: msg})
}

// Run writes events until ctx is done or Close is called, then flushes
// what is buffered.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case e := <-j.events:
			j.write(e)
		case <-ctx.Done():
			j.flush()
			return
		case <-j.done:
			j.flush()
			return
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case e := <-j.events:
			j.write(e)
		default:
			return
		}
	}
}

// Close stops Run.
func (j *Journal) Close() {
	j.closeOnce.Do(func() { close(j.done) })
}

func (j *Journal) write(e event) {
	var err error
	switch e.kind {
	case eventFault:
		_, err = j.store.RecordFault(e.axis, e.code, e.msg)
	case eventHomed:
		err = j.store.SaveHomePosition(e.axis, e.pos)
	}
	if err != nil {
		j.log.WithField("axis", e.axis).WithError(err).Error("journal write failed")
	}
}

var _ axis.Observer = (*Journal)(nil)
