// Fixed-capacity ring of reusable slots
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package ringq provides a bounded FIFO whose elements live in a
// preallocated slot array. Reserving a slot returns a pointer into the
// array so callers can build values in place; nothing allocates after New.
package ringq

// Queue is a bounded double-ended ring. It is not safe for concurrent use.
type Queue[T any] struct {
	slots []T
	head  int
	tail  int
}

// New creates a queue holding at most n elements. One spare slot
// distinguishes full from empty.
func New[T any](n int) *Queue[T] {
	if n < 1 {
		n = 1
	}
	return &Queue[T]{slots: make([]T, n+1)}
}

func (q *Queue[T]) inc(i int) int {
	i++
	if i == len(q.slots) {
		return 0
	}
	return i
}

func (q *Queue[T]) dec(i int) int {
	if i == 0 {
		return len(q.slots) - 1
	}
	return i - 1
}

// Cap returns the number of usable slots.
func (q *Queue[T]) Cap() int { return len(q.slots) - 1 }

// Len returns the number of occupied slots.
func (q *Queue[T]) Len() int {
	n := q.tail - q.head
	if n < 0 {
		n += len(q.slots)
	}
	return n
}

// Empty reports whether no slot is occupied.
func (q *Queue[T]) Empty() bool { return q.head == q.tail }

// Full reports whether every usable slot is occupied.
func (q *Queue[T]) Full() bool { return q.inc(q.tail) == q.head }

// PushBack reserves the next slot at the tail and returns it zeroed.
// It returns nil when the queue is full.
func (q *Queue[T]) PushBack() *T {
	if q.Full() {
		return nil
	}
	p := &q.slots[q.tail]
	var zero T
	*p = zero
	q.tail = q.inc(q.tail)
	return p
}

// PopFront releases the head slot. It does nothing on an empty queue.
func (q *Queue[T]) PopFront() {
	if q.Empty() {
		return
	}
	var zero T
	q.slots[q.head] = zero
	q.head = q.inc(q.head)
}

// PopBack releases the tail slot. It does nothing on an empty queue.
func (q *Queue[T]) PopBack() {
	if q.Empty() {
		return
	}
	q.tail = q.dec(q.tail)
	var zero T
	q.slots[q.tail] = zero
}

// Clear releases every slot.
func (q *Queue[T]) Clear() {
	for !q.Empty() {
		q.PopFront()
	}
	q.head, q.tail = 0, 0
}

// Front returns the oldest element, or nil.
func (q *Queue[T]) Front() *T {
	if q.Empty() {
		return nil
	}
	return &q.slots[q.head]
}

// Back returns the newest element, or nil.
func (q *Queue[T]) Back() *T {
	if q.Empty() {
		return nil
	}
	return &q.slots[q.dec(q.tail)]
}

// index maps an element pointer back to its slot, or -1 when p is not
// an occupied slot of q.
func (q *Queue[T]) index(p *T) int {
	if p == nil {
		return -1
	}
	for i := q.head; i != q.tail; i = q.inc(i) {
		if &q.slots[i] == p {
			return i
		}
	}
	return -1
}

// Next returns the element queued after p, or nil at the tail.
func (q *Queue[T]) Next(p *T) *T {
	i := q.index(p)
	if i < 0 {
		return nil
	}
	i = q.inc(i)
	if i == q.tail {
		return nil
	}
	return &q.slots[i]
}

// Prev returns the element queued before p, or nil at the head.
func (q *Queue[T]) Prev(p *T) *T {
	i := q.index(p)
	if i < 0 || i == q.head {
		return nil
	}
	return &q.slots[q.dec(i)]
}

// At returns the i-th element counted from the head, or nil.
func (q *Queue[T]) At(i int) *T {
	if i < 0 || i >= q.Len() {
		return nil
	}
	j := q.head + i
	if j >= len(q.slots) {
		j -= len(q.slots)
	}
	return &q.slots[j]
}
