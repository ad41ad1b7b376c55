package core

import "math"

// Round rounds to the nearest integer with halves going toward +Inf
// (Round(2.5) == 3, Round(-2.5) == -2), the rounding the watch ecosystem uses.
func Round(x float64) int {
	return int(math.Floor(x + 0.5))
}
