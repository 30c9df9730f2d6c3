// Object pools for the outer layers
//
// Provides reusable buffers for the allocations that repeat on every
// request or every analysis:
// - Byte buffers (for JSON response bodies)
// - Float slices (for trace columns)
//
// Usage:
//
//	buf := pool.GetByteBuffer()
//	defer pool.PutByteBuffer(buf)
//	// encode into buf...
//
// The tick path does not use these pools; it allocates nothing.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// Float64 slices are pooled by capacity class, powers of two from 256 to
// 64Ki elements.
const (
	minFloatClass = 8  // 256
	maxFloatClass = 16 // 65536
)

var floatPools [maxFloatClass - minFloatClass + 1]sync.Pool

// floatClass returns the smallest class holding size elements, or -1.
func floatClass(size int) int {
	for c := minFloatClass; c <= maxFloatClass; c++ {
		if size <= 1<<c {
			return c - minFloatClass
		}
	}
	return -1
}

// GetFloat64Slice returns a zeroed slice of length size. Sizes above the
// largest class are allocated directly.
func GetFloat64Slice(size int) []float64 {
	idx := floatClass(size)
	if idx < 0 {
		return make([]float64, size)
	}
	if p, ok := floatPools[idx].Get().(*[]float64); ok {
		s := (*p)[:size]
		clear(s)
		return s
	}
	return make([]float64, size, 1<<(idx+minFloatClass))
}

// PutFloat64Slice returns s to its pool. s must not be used afterwards.
func PutFloat64Slice(s []float64) {
	if s == nil {
		return
	}
	c := cap(s)
	idx := floatClass(c)
	// only exact class capacities come from GetFloat64Slice
	if idx < 0 || c != 1<<(idx+minFloatClass) {
		return
	}
	s = s[:0]
	floatPools[idx].Put(&s)
}

// ByteBuffer is a growable, reusable byte buffer.
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{
			buf: make([]byte, 0, 512), // a typical axis state body
		}
	},
}

// GetByteBuffer gets a byte buffer from the pool
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(b *ByteBuffer) {
	if b == nil {
		return
	}
	// Don't pool oversized buffers (> 64KB)
	if cap(b.buf) > 64<<10 {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice
func (b *ByteBuffer) Bytes() []byte {
	return b.buf
}

// Write appends bytes to the buffer
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// WriteString appends a string
func (b *ByteBuffer) WriteString(s string) (int, error) {
	b.buf = append(b.buf, s...)
	return len(s), nil
}

func (b *ByteBuffer) Len() int { return len(b.buf) }

func (b *ByteBuffer) Cap() int { return cap(b.buf) }

// Reset clears the buffer
func (b *ByteBuffer) Reset() {
	b.buf = b.buf[:0]
}
