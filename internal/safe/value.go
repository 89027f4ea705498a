package safe

import (
	"math"
)

// IntToUint32 safely converts an int to uint32.
// Returns the converted value and a boolean indicating whether the input was
// out of range (in which case the result is clamped to the nearest bound).
func IntToUint32(val int) (uint32, bool) {
	if val < 0 {
		return 0, true
	}
	if val > math.MaxUint32 {
		return math.MaxUint32, true
	}
	return uint32(val), false
}

// IntToInt32 safely converts an int to int32, clamping on overflow.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToInt32(val int) (int32, bool) {
	if val > math.MaxInt32 {
		return math.MaxInt32, true
	}
	if val < math.MinInt32 {
		return math.MinInt32, true
	}
	return int32(val), false
}
