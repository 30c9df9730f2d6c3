// Package endstop provides the digital inputs that homing sequences watch.
//
// A Bank is a byte wide input register. Each bit is either driven from
// outside (Set) or backed by an Endstop that is queried when the register
// is read.
package endstop

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"plcmotion/pkg/servo"
)

// Common errors
var (
	ErrBitRange = errors.New("endstop: bit out of range")
	ErrBitInUse = errors.New("endstop: bit already assigned")
)

// Bits is the width of a bank.
const Bits = 8

// EndstopState represents the current state of an endstop.
type EndstopState int

const (
	StateOpen EndstopState = iota
	StateTriggered
	StateUnknown
)

func (s EndstopState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Endstop represents a single switch input.
type Endstop struct {
	mu sync.RWMutex

	name     string
	bit      uint8
	inverted bool

	state    EndstopState
	triggers uint64

	query func() bool
}

// EndstopConfig holds configuration for an endstop.
type EndstopConfig struct {
	Name     string
	Bit      uint8
	Inverted bool
}

// New creates an endstop read through query. A nil query leaves the
// level to Bank.Set.
func New(cfg EndstopConfig, query func() bool) *Endstop {
	return &Endstop{
		name:     cfg.Name,
		bit:      cfg.Bit,
		inverted: cfg.Inverted,
		state:    StateUnknown,
		query:    query,
	}
}

// Name returns the endstop name.
func (e *Endstop) Name() string { return e.name }

// Bit returns the bank bit the endstop drives.
func (e *Endstop) Bit() uint8 { return e.bit }

// update records a raw level and returns the logical one.
func (e *Endstop) update(raw bool) bool {
	level := raw != e.inverted
	e.mu.Lock()
	if level && e.state != StateTriggered {
		e.triggers++
	}
	if level {
		e.state = StateTriggered
	} else {
		e.state = StateOpen
	}
	e.mu.Unlock()
	return level
}

// State returns the last sampled state.
func (e *Endstop) State() EndstopState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsTriggered returns true if the endstop was triggered when last sampled.
func (e *Endstop) IsTriggered() bool { return e.State() == StateTriggered }

// Status holds endstop status information.
type Status struct {
	Name      string `json:"name"`
	Bit       uint8  `json:"bit"`
	State     string `json:"state"`
	Triggered bool   `json:"triggered"`
	Triggers  uint64 `json:"triggers"`
}

// GetStatus returns the current endstop status.
func (e *Endstop) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Name:      e.name,
		Bit:       e.bit,
		State:     e.state.String(),
		Triggered: e.state == StateTriggered,
		Triggers:  e.triggers,
	}
}

// Bank is an 8 bit input register.
type Bank struct {
	mu       sync.RWMutex
	name     string
	endstops [Bits]*Endstop

	levels atomic.Uint32
}

// NewBank creates an empty register.
func NewBank(name string) *Bank {
	return &Bank{name: name}
}

// Name returns the bank name.
func (b *Bank) Name() string { return b.name }

// Add assigns e to its bit.
func (b *Bank) Add(e *Endstop) error {
	if e.bit >= Bits {
		return fmt.Errorf("%w: %d", ErrBitRange, e.bit)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endstops[e.bit] != nil {
		return fmt.Errorf("%w: %d (%s)", ErrBitInUse, e.bit, b.endstops[e.bit].name)
	}
	b.endstops[e.bit] = e
	return nil
}

// Endstop returns the endstop on bit, or nil.
func (b *Bank) Endstop(bit uint8) *Endstop {
	if bit >= Bits {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.endstops[bit]
}

// Set drives bit from outside. It may be called from any goroutine.
func (b *Bank) Set(bit uint8, level bool) error {
	if bit >= Bits {
		return fmt.Errorf("%w: %d", ErrBitRange, bit)
	}
	mask := uint32(1) << bit
	for {
		old := b.levels.Load()
		next := old &^ mask
		if level {
			next |= mask
		}
		if b.levels.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// Byte samples every input and returns the register value.
func (b *Bank) Byte() uint8 {
	levels := uint8(b.levels.Load())
	b.mu.RLock()
	defer b.mu.RUnlock()
	for bit, e := range b.endstops {
		if e == nil {
			continue
		}
		mask := uint8(1) << bit
		raw := levels&mask != 0
		if e.query != nil {
			raw = e.query()
		}
		if e.update(raw) {
			levels |= mask
		} else {
			levels &^= mask
		}
	}
	return levels
}

// Statuses returns the state of every assigned input.
func (b *Bank) Statuses() []Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Status
	for _, e := range b.endstops {
		if e != nil {
			out = append(out, e.GetStatus())
		}
	}
	return out
}

// PositionSwitch is a cam switch on the drive encoder: it reads high while
// the raw device position is at or beyond Threshold.
type PositionSwitch struct {
	Device    servo.Device
	Threshold int32
}

// Triggered samples the switch.
func (p PositionSwitch) Triggered() bool {
	return p.Device.Pos() >= p.Threshold
}
