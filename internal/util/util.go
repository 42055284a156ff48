package util

import (
	"math"
	"time"
)

// AsInt32 converts i to int32, clamping values outside the int32 range.
func AsInt32(i int64) int32 {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	// #nosec G115 - bounded by explicit check
	return int32(i)
}

// DurationSeconds returns d in whole seconds as an int32, rounding up so a
// positive sub-second duration never becomes zero.
func DurationSeconds(d time.Duration) int32 {
	secs := int64(d / time.Second)
	if d%time.Second > 0 {
		secs++
	}
	return AsInt32(secs)
}
