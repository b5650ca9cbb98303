package utils

import "math"

// Tolerances used when deciding whether accumulated quantities cancel out.
const (
	RelTolerance = 1e-9
	AbsTolerance = 1e-12
)

// IsClose reports whether a and b are equal within RelTolerance relative to
// the larger magnitude or AbsTolerance absolute, whichever is looser.
func IsClose(a, b float64) bool {
	if a == b {
		return true
	}
	diff := math.Abs(a - b)
	return diff <= math.Max(RelTolerance*math.Max(math.Abs(a), math.Abs(b)), AbsTolerance)
}

// Sign returns -1, 0 or 1.
func Sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
