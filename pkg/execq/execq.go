// Motion command execution queue
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package execq sequences motion command nodes. The front node is polled
// once per tick; a completed node may be kept as the held node so that a
// continuous command keeps driving the axis until a successor arrives.
//
// The queue is generic over the owner context C, which is handed to every
// node callback, and over the node storage type T. Nodes are stored by
// value inside the ring slots, so enqueueing never allocates.
package execq

import (
	"plcmotion/pkg/errors"
	"plcmotion/pkg/ringq"
)

// DefaultCapacity is the number of commands an axis can queue.
const DefaultCapacity = 6

// Result is what a node reports after one execution poll.
type Result int

const (
	// Busy keeps the node at the front.
	Busy Result = iota
	// Done completes the node.
	Done
	// FastDone completes the node and polls its successor in the same tick.
	FastDone
)

func (r Result) String() string {
	switch r {
	case Busy:
		return "busy"
	case Done:
		return "done"
	case FastDone:
		return "fastdone"
	default:
		return "unknown"
	}
}

// Node is the lifecycle contract of a queued command.
type Node[C any] interface {
	// Activate is called before the first Execute.
	Activate(ctx C) error
	// Execute advances the node by one tick.
	Execute(ctx C) (Result, error)
	// Complete is called once the node reports Done or FastDone. A true
	// return keeps the node as the held node.
	Complete(ctx C) (hold bool)
	// Abort is called when the node is discarded by a newer command.
	Abort(ctx C)
	// Fail is called when the queue is flushed after an error.
	Fail(ctx C, err error)
}

// NodePtr constrains P to be *T implementing Node.
type NodePtr[C, T any] interface {
	*T
	Node[C]
}

type slot[T any] struct {
	node   T
	active bool
}

// Queue is a bounded FIFO of nodes plus one held node. It is driven from a
// single goroutine.
type Queue[C any, T any, P NodePtr[C, T]] struct {
	ring    *ringq.Queue[slot[T]]
	held    T
	holding bool

	onAllAborted func(ctx C)
}

// New creates a queue with room for capacity nodes.
func New[C any, T any, P NodePtr[C, T]](capacity int) *Queue[C, T, P] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[C, T, P]{ring: ringq.New[slot[T]](capacity)}
}

func (q *Queue[C, T, P]) dropHeld() {
	var zero T
	q.held = zero
	q.holding = false
}

// OnAllAborted installs fn to run after AbortAll has discarded at least
// one node.
func (q *Queue[C, T, P]) OnAllAborted(fn func(ctx C)) {
	q.onAllAborted = fn
}

// Step runs one tick of the queue.
func (q *Queue[C, T, P]) Step(ctx C) {
	if q.holding {
		if !q.ring.Empty() {
			P(&q.held).Abort(ctx)
			q.dropHeld()
		} else if _, err := P(&q.held).Execute(ctx); err != nil {
			q.FailAll(ctx, err)
			return
		}
	}
	q.stepFront(ctx)
}

func (q *Queue[C, T, P]) stepFront(ctx C) {
	s := q.ring.Front()
	if s == nil {
		return
	}
	n := P(&s.node)
	if !s.active {
		if err := n.Activate(ctx); err != nil {
			q.FailAll(ctx, err)
			return
		}
		s.active = true
	}

	res, err := n.Execute(ctx)
	if err != nil {
		q.FailAll(ctx, err)
		return
	}
	if res == Busy {
		return
	}
	// A callback may have flushed the queue.
	if q.ring.Front() != s {
		return
	}
	if n.Complete(ctx) {
		q.held = s.node
		q.holding = true
	}
	q.ring.PopFront()

	if res == FastDone {
		q.stepFront(ctx)
	}
}

// Enqueue appends a node built by init in a freshly zeroed slot. With
// abort set every held and queued node is aborted first.
func (q *Queue[C, T, P]) Enqueue(ctx C, abort bool, init func(n P)) error {
	if abort {
		q.AbortAll(ctx)
	}
	s := q.ring.PushBack()
	if s == nil {
		return errors.QueueFull
	}
	if init != nil {
		init(P(&s.node))
	}
	return nil
}

// AbortAll aborts the held node and then every queued node, front first.
func (q *Queue[C, T, P]) AbortAll(ctx C) {
	if !q.Busy() {
		return
	}
	if q.holding {
		P(&q.held).Abort(ctx)
		q.dropHeld()
	}
	for s := q.ring.Front(); s != nil; s = q.ring.Front() {
		P(&s.node).Abort(ctx)
		q.ring.PopFront()
	}
	if q.onAllAborted != nil {
		q.onAllAborted(ctx)
	}
}

// FailAll reports err to the held node and then to every queued node and
// discards them all.
func (q *Queue[C, T, P]) FailAll(ctx C, err error) {
	if q.holding {
		P(&q.held).Fail(ctx, err)
		q.dropHeld()
	}
	for s := q.ring.Front(); s != nil; s = q.ring.Front() {
		P(&s.node).Fail(ctx, err)
		q.ring.PopFront()
	}
}

// Busy reports whether any node is queued or held.
func (q *Queue[C, T, P]) Busy() bool {
	return !q.ring.Empty() || q.holding
}

// Remaining returns the number of queued nodes. The held node is not
// counted.
func (q *Queue[C, T, P]) Remaining() int {
	return q.ring.Len()
}

// Cap returns the queue capacity.
func (q *Queue[C, T, P]) Cap() int {
	return q.ring.Cap()
}

// Held returns the held node, or nil.
func (q *Queue[C, T, P]) Held() P {
	if !q.holding {
		return nil
	}
	return P(&q.held)
}

// Front returns the node polled next, or nil.
func (q *Queue[C, T, P]) Front() P {
	if s := q.ring.Front(); s != nil {
		return P(&s.node)
	}
	return nil
}

// Back returns the most recently queued node, or nil.
func (q *Queue[C, T, P]) Back() P {
	if s := q.ring.Back(); s != nil {
		return P(&s.node)
	}
	return nil
}

func (q *Queue[C, T, P]) slotOf(n P) *slot[T] {
	for s := q.ring.Front(); s != nil; s = q.ring.Next(s) {
		if P(&s.node) == n {
			return s
		}
	}
	return nil
}

// Next returns the node queued after n, or nil.
func (q *Queue[C, T, P]) Next(n P) P {
	if s := q.ring.Next(q.slotOf(n)); s != nil {
		return P(&s.node)
	}
	return nil
}

// Prev returns the node queued before n, or nil.
func (q *Queue[C, T, P]) Prev(n P) P {
	if s := q.ring.Prev(q.slotOf(n)); s != nil {
		return P(&s.node)
	}
	return nil
}

// Each calls fn for every queued node, front first.
func (q *Queue[C, T, P]) Each(fn func(n P)) {
	for s := q.ring.Front(); s != nil; s = q.ring.Next(s) {
		fn(P(&s.node))
	}
}
