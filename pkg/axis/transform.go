package axis

import "math"

// moduloToLinear places target, given modulo the axis period, on the
// linear scale relative to base according to dir.
func (a *Axis) moduloToLinear(base, target float64, dir Direction) float64 {
	mod := a.metric.Modulo
	if mod == 0 {
		return target
	}
	current := base - a.linearToModulo(base) + a.linearToModulo(target)
	switch dir {
	case DirectionPositive:
		if current > base {
			return current
		}
		return current + mod
	case DirectionNegative:
		if current < base {
			return current
		}
		return current - mod
	case DirectionShortest:
		side := current + mod
		if current > base {
			side = current - mod
		}
		if math.Abs(current-base) < math.Abs(side-base) {
			return current
		}
		return side
	default:
		return current
	}
}

// linearToModulo maps pos into [0, modulo).
func (a *Axis) linearToModulo(pos float64) float64 {
	mod := a.metric.Modulo
	if mod == 0 {
		return pos
	}
	r := math.Mod(pos, mod)
	if r < 0 {
		r += mod
	}
	return r
}

func (a *Axis) packHome(pos float64) float64 {
	return a.wrapRange(pos + a.homePos)
}

func (a *Axis) stripHome(base, pos float64) float64 {
	return pos - a.packHome(base) + base
}

// UserPosToSys converts a user position to the system scale, resolving
// the modulo ambiguity around base in direction dir.
func (a *Axis) UserPosToSys(base, user float64, dir Direction) float64 {
	return a.moduloToLinear(base, a.stripHome(base, user), dir)
}

// SysPosToUser converts a system position to user units.
func (a *Axis) SysPosToUser(sys float64) float64 {
	return a.linearToModulo(a.packHome(sys))
}

// UserPosition returns the command position in user units.
func (a *Axis) UserPosition() float64 { return a.SysPosToUser(a.cmdPos) }
