// Trapezoidal route construction
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package profile

import "math"

// MaxSegments is the maximum number of segments in one route.
const MaxSegments = 5

// Segment is one constant-acceleration leg of a route.
type Segment struct {
	StartPos float64
	EndPos   float64
	StartVel float64
	Acc      float64
	T        float64
	Tick     int32
	// Snap places the axis exactly on EndPos with zero velocity when the
	// segment finishes. Only the last segment of a route ending at rest
	// carries it.
	Snap bool
}

func (s *Segment) set(startPos, endPos, startVel, acc, t float64) {
	s.StartPos = startPos
	s.EndPos = endPos
	s.StartVel = startVel
	s.Acc = acc
	s.T = t
}

// calShift returns the displacement and duration of a constant
// acceleration ramp from sv to ev.
func calShift(sv, ev, acc float64) (shift, t float64) {
	if acc == 0 && IsEq(sv, ev) {
		t = 0
	} else {
		t = math.Abs((ev - sv) / acc)
	}
	return (sv + ev) * t / 2, t
}

func accNeg(sv, ev float64) bool { return ev < sv }

// calculateRoute fills segs relative to position zero. endVel may be
// lowered when the displacement is too short to reach it.
func calculateRoute(segs *[MaxSegments]Segment, shift, startVel, vel, acc, dec float64, endVel *float64) Result {
	result := Exact
	shiftTmp := shift
	endVelTmp := *endVel
	shiftPre := 0.0

	if shift < 0 || (shift == 0 && *endVel < startVel) {
		vel = -vel
	}

	// Moving away from the target: decelerate to zero first.
	if IsOpposite(shiftTmp, startVel) {
		var t float64
		shiftPre, t = calShift(startVel, 0, dec)
		a := -dec
		if shiftPre < 0 {
			a = dec
		}
		segs[0].set(0, shiftPre, startVel, a, t)
		startVel = 0
		shiftTmp -= shiftPre
	} else {
		segs[0].set(0, 0, 0, 0, 0)
	}

	vUni := vel
	var acc1, acc2, acc3 float64
	var tAcc1, tAcc2, tAcc3, tUni float64
	var sAcc1, sAcc2, sAcc3, sUni float64

	// End velocity against the cruise direction: final ramp from zero.
	if IsOpposite(vel, *endVel) {
		acc3 = acc
		if accNeg(vel, *endVel) {
			acc3 = -acc
		}
		sAcc3, tAcc3 = calShift(0, *endVel, acc3)
		shiftTmp -= sAcc3
		endVelTmp = 0
	}

	// Overtravel: a direct ramp to the end velocity already passes the target.
	acc2 = acc
	if math.Abs(startVel) > math.Abs(endVelTmp) {
		acc2 = dec
	}
	if accNeg(startVel, endVelTmp) {
		acc2 = -acc2
	}
	sAcc2, _ = calShift(startVel, endVelTmp, acc2)
	if IsNe(sAcc2, shiftTmp) && math.Abs(sAcc2) > math.Abs(shiftTmp) {
		endVelTmp = math.Sqrt(sq(startVel) + 2*acc2*shiftTmp)
		if math.Abs(*endVel) > endVelTmp {
			result = Reduced
		} else {
			result = Unreachable
		}
		if shiftTmp < 0 {
			endVelTmp = -endVelTmp
		}
		*endVel = endVelTmp
	}

	acc1 = dec
	if math.Abs(startVel) < math.Abs(vel) {
		acc1 = acc
	}
	if accNeg(startVel, vel) {
		acc1 = -acc1
	}
	acc2 = dec
	if math.Abs(vel) < math.Abs(endVelTmp) {
		acc2 = acc
	}
	if accNeg(vel, endVelTmp) {
		acc2 = -acc2
	}

	sAcc1, tAcc1 = calShift(startVel, vel, acc1)
	sAcc2, tAcc2 = calShift(vel, endVelTmp, acc2)
	sSum := sAcc1 + sAcc2

	if math.Abs(sSum) > math.Abs(shiftTmp) && IsNe(sSum, shiftTmp) {
		// No room to cruise at vel: solve the peak velocity.
		vUni = math.Sqrt(((2*shiftTmp + sq(startVel)/acc1 - sq(endVelTmp)/acc2) *
			(acc1 * acc2)) / (acc2 - acc1))
		if vel < 0 {
			vUni = -vUni
		}
		sAcc1, tAcc1 = calShift(startVel, vUni, acc1)
		sAcc2, tAcc2 = calShift(vUni, endVelTmp, acc2)
	} else {
		sUni = shiftTmp - sSum
		tUni = math.Abs(sUni / vel)
	}

	p := shiftPre
	segs[1].set(p, p+sAcc1, startVel, acc1, tAcc1)
	p += sAcc1
	segs[2].set(p, p+sUni, vUni, 0, tUni)
	p += sUni
	segs[3].set(p, p+sAcc2, vUni, acc2, tAcc2)
	p += sAcc2
	segs[4].set(p, shift, endVelTmp, acc3, tAcc3)

	return result
}

// verifyAndShift compacts the usable segments to the front of segs and
// moves them to the absolute base position.
func verifyAndShift(segs *[MaxSegments]Segment, endVel, base float64) int {
	n := 0
	for i := 0; i < MaxSegments; i++ {
		if !isFinite(segs[i].EndPos) || !isFinite(segs[i].T) {
			break
		}
		if segs[i].T != 0 {
			segs[n] = segs[i]
			segs[n].StartPos += base
			segs[n].EndPos += base
			n++
		}
	}
	if n > 0 {
		segs[n-1].Snap = endVel == 0
	}
	for i := n; i < MaxSegments; i++ {
		segs[i] = Segment{}
	}
	return n
}

func checkResults(segs []Segment) bool {
	for i := range segs {
		s := &segs[i]
		if !isFinite(s.StartPos) || math.IsNaN(s.EndPos) ||
			!isFinite(s.StartVel) || !isFinite(s.Acc) {
			return false
		}
	}
	return true
}

// discretize aligns segments to the tick grid. remain is the time left
// over from the previous route and is updated with what this one leaves.
func discretize(segs []Segment, freq uint32, remain *float64) {
	f := float64(freq)
	rem := *remain
	for i := range segs {
		s := &segs[i]
		s.T -= rem
		tf := s.T * f
		next := 1 / f
		if c := math.Ceil(tf); c != tf {
			next = (c - tf) / f
		}
		s.StartPos += s.StartVel*rem + s.Acc*rem*rem/2
		s.StartVel += s.Acc * rem
		s.Tick = int32(tf)
		rem = next
	}
	*remain = rem
}

// mergeTiny drops segments consumed entirely by the carried remainder.
// A snapping segment is kept and finishes on its first tick.
func mergeTiny(segs *[MaxSegments]Segment, n int) int {
	m := 0
	for i := 0; i < n; i++ {
		if segs[i].T < 0 {
			if !segs[i].Snap {
				continue
			}
			segs[i].Tick = -1
		}
		segs[m] = segs[i]
		m++
	}
	return m
}
