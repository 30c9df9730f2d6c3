package profile

import "math"

// Epsilon is the tolerance used by every approximate comparison in the
// motion kernel.
const Epsilon = 0.00001

func sq(x float64) float64 { return x * x }

// IsZero reports |x| < Epsilon.
func IsZero(x float64) bool { return math.Abs(x) < Epsilon }

// IsEq reports a ≈ b.
func IsEq(a, b float64) bool { return IsZero(a - b) }

// IsNe reports |a-b| > Epsilon. IsNe is not the negation of IsEq at
// exactly Epsilon apart.
func IsNe(a, b float64) bool { return math.Abs(a-b) > Epsilon }

// IsGt reports a > b + Epsilon.
func IsGt(a, b float64) bool { return a > b+Epsilon }

// IsLs reports a < b - Epsilon.
func IsLs(a, b float64) bool { return a < b-Epsilon }

// IsOpposite reports whether a and b are both nonzero with different signs.
func IsOpposite(a, b float64) bool {
	if a == 0 || b == 0 {
		return false
	}
	return (a < 0) != (b < 0)
}

func isFinite(x float64) bool { return !math.IsInf(x, 0) && !math.IsNaN(x) }
