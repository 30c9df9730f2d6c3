// Trapezoidal velocity profile planner
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package profile plans and samples trapezoidal velocity profiles on a
// fixed tick grid. A plan is built from closed-form ramps and then
// discretized so that consecutive plans join without losing the
// fractional tick left over by the previous one.
package profile

import "math"

const (
	// DefaultFrequency is the sampling rate of a new planner in Hz.
	DefaultFrequency uint32 = 1000
	// MaxFrequency is the highest accepted sampling rate in Hz.
	MaxFrequency uint32 = 100000
)

// Result classifies the outcome of Plan.
type Result int

const (
	// Exact means the requested end velocity is reached at the target.
	Exact Result = iota
	// Reduced means the target is too close to reach the end velocity.
	Reduced
	// Unreachable means the target is too close to slow down to the end
	// velocity.
	Unreachable
	// Rejected means the parameters or the computed route are invalid.
	Rejected
	// Empty means start and end coincide and there is nothing to run.
	Empty
)

func (r Result) String() string {
	switch r {
	case Exact:
		return "exact"
	case Reduced:
		return "reduced"
	case Unreachable:
		return "unreachable"
	case Rejected:
		return "rejected"
	case Empty:
		return "empty"
	default:
		return "unknown"
	}
}

// OK reports whether the plan was installed and can be executed.
func (r Result) OK() bool { return r == Exact }

// Input holds the boundary conditions of the last plan.
type Input struct {
	StartPos float64
	EndPos   float64
	StartVel float64
	EndVel   float64
}

type state struct {
	position   float64
	velocity   float64
	tick       int32
	frequency  uint32
	segment    int
	numSegment int
	remain     float64
	segments   [MaxSegments]Segment
}

// Planner samples one trajectory at a time. It is not safe for
// concurrent use.
type Planner struct {
	data      state
	backup    state
	input     Input
	frequency uint32
}

// New creates a planner sampling at DefaultFrequency.
func New() *Planner {
	p := &Planner{}
	p.Reset()
	return p
}

// Reset discards every plan and restores the default frequency.
func (p *Planner) Reset() {
	*p = Planner{frequency: DefaultFrequency}
	p.data.frequency = DefaultFrequency
	p.backup.frequency = DefaultFrequency
}

// Settle marks the planner finished and at rest at pos.
func (p *Planner) Settle(pos float64) {
	p.data.segment, p.data.numSegment = 0, 0
	p.data.position = pos
	p.data.velocity = 0
	p.input = Input{StartPos: pos, EndPos: pos}
}

// SetFrequency sets the sampling rate used by following plans. It reports
// false and keeps the old rate outside 1..MaxFrequency.
func (p *Planner) SetFrequency(freq uint32) bool {
	if freq == 0 || freq > MaxFrequency {
		return false
	}
	p.frequency = freq
	return true
}

// Frequency returns the sampling rate in Hz.
func (p *Planner) Frequency() uint32 { return p.frequency }

// LimitStartVel caps startVel so that the axis can still decelerate to
// endVel within dist.
func LimitStartVel(dist, startVel, endVel, dec float64) float64 {
	if startVel == 0 {
		return startVel
	}
	if (startVel < 0) != (endVel < 0) && endVel != 0 {
		return startVel
	}
	limit := math.Sqrt(2*math.Abs(dist)*math.Abs(dec) + sq(endVel))
	if limit < math.Abs(startVel) {
		if startVel > 0 {
			return limit
		}
		return -limit
	}
	return startVel
}

// CalculateDist returns the signed distance needed to change velocity
// from startVel to endVel.
func CalculateDist(startVel, endVel, acc, dec float64) float64 {
	acc = math.Abs(acc)
	dec = math.Abs(dec)
	if IsOpposite(startVel, endVel) {
		return (startVel*math.Abs(startVel)/dec + endVel*math.Abs(endVel)/acc) * 0.5
	}
	cc := acc
	if math.Abs(startVel) > math.Abs(endVel) {
		cc = dec
	}
	return (startVel + endVel) * math.Abs(startVel-endVel) / cc * 0.5
}

// Plan replaces the current trajectory with a move from start to end.
// vel is the cruise speed; acc and dec are magnitudes. Unless the result
// is Exact or Empty the previous trajectory is kept untouched.
func (p *Planner) Plan(start, end, startVel, vel, endVel, acc, dec float64) Result {
	var result Result
	if IsEq(start, end) && IsEq(startVel, endVel) {
		p.data.numSegment = 0
		result = Empty
	} else {
		if acc == 0 || dec == 0 {
			return Rejected
		}
		vel = math.Abs(vel)
		acc = math.Abs(acc)
		dec = math.Abs(dec)

		p.backup = p.data
		p.data.tick = 0
		p.data.segment = 0
		p.data.segments = [MaxSegments]Segment{}

		result = calculateRoute(&p.data.segments, end-start, startVel, vel, acc, dec, &endVel)
		if result != Exact {
			p.data = p.backup
			return result
		}

		n := verifyAndShift(&p.data.segments, endVel, start)
		if n == 0 || !checkResults(p.data.segments[:n]) {
			p.data = p.backup
			return Rejected
		}
		if p.backup.segment < p.backup.numSegment {
			p.data.remain = 1 / float64(p.frequency)
		}
		discretize(p.data.segments[:n], p.frequency, &p.data.remain)
		p.data.numSegment = mergeTiny(&p.data.segments, n)
	}

	p.data.frequency = p.frequency
	p.data.position = start
	p.data.velocity = startVel
	p.input = Input{StartPos: start, EndPos: end, StartVel: startVel, EndVel: endVel}

	if p.data.numSegment == 0 && result == Exact {
		result = Empty
	}
	return result
}

// Finished reports whether every segment has been sampled.
func (p *Planner) Finished() bool {
	return p.data.segment >= p.data.numSegment
}

// Execute advances one tick and reports whether the trajectory is
// complete. After completion the position keeps moving at the end
// velocity.
func (p *Planner) Execute() bool {
	d := &p.data
	f := float64(d.frequency)
	if d.segment >= d.numSegment {
		d.velocity = p.input.EndVel
		d.position += d.velocity / f
		p.input.EndPos = d.position
		d.remain = 1 / f
		return true
	}

	s := &d.segments[d.segment]
	t := float64(d.tick) / f
	half := s.Acc * t / 2
	d.velocity = s.StartVel + half
	d.position = s.StartPos + d.velocity*t
	d.velocity += half

	switch {
	case d.tick == s.Tick && !s.Snap:
	case d.tick > s.Tick:
		d.position = s.EndPos
		if s.Snap {
			d.remain = 0
			d.velocity = 0
		}
	default:
		d.tick++
		return false
	}

	d.tick = 0
	d.segment++
	return d.segment == d.numSegment
}

// ReadStatus reports 0 standstill, 1 constant velocity, 2 accelerating or
// 3 decelerating.
func (p *Planner) ReadStatus() int {
	d := &p.data
	if d.segment >= d.numSegment || d.segments[d.segment].Acc == 0 {
		if d.velocity == 0 {
			return 0
		}
		return 1
	}
	if (d.segments[d.segment].Acc > 0) != (d.velocity > 0) {
		return 3
	}
	return 2
}

// Position returns the sampled position.
func (p *Planner) Position() float64 { return p.data.position }

// Velocity returns the sampled velocity.
func (p *Planner) Velocity() float64 { return p.data.velocity }

// Acceleration returns the acceleration of the running segment.
func (p *Planner) Acceleration() float64 {
	if p.data.segment >= p.data.numSegment {
		return 0
	}
	return p.data.segments[p.data.segment].Acc
}

// StartPosition returns the start position of the last plan.
func (p *Planner) StartPosition() float64 { return p.input.StartPos }

// EndPosition returns the end position of the last plan, or the current
// position once the trajectory has run out.
func (p *Planner) EndPosition() float64 { return p.input.EndPos }

// StartVelocity returns the start velocity of the last plan.
func (p *Planner) StartVelocity() float64 { return p.input.StartVel }

// EndVelocity returns the end velocity actually planned.
func (p *Planner) EndVelocity() float64 { return p.input.EndVel }

// Segments returns a copy of the pending segments.
func (p *Planner) Segments() []Segment {
	out := make([]Segment, p.data.numSegment)
	copy(out, p.data.segments[:p.data.numSegment])
	return out
}

// ResetRemain sets the carried tick remainder to one period at freq.
func (p *Planner) ResetRemain(freq uint32) {
	if freq == 0 {
		return
	}
	p.data.remain = 1 / float64(freq)
}

// SetPositionOffset shifts the trajectory by off, the segments still to
// run included.
func (p *Planner) SetPositionOffset(off float64) {
	d := &p.data
	for i := d.segment; i < d.numSegment; i++ {
		d.segments[i].StartPos += off
		d.segments[i].EndPos += off
	}
	d.position += off
	p.input.StartPos += off
	p.input.EndPos += off
}
