package emotion

import "math"

const (
	// Neutral is reported when no emotion category scores.
	Neutral = "neutral"

	// HistorySize bounds the rolling reading history.
	HistorySize = 10
)

// Dominant emotions of the companion's mood/energy quadrant.
const (
	MoodExcited = "excited"
	MoodContent = "content"
	MoodAngry   = "angry"
	MoodSad     = "sad"
	MoodFocused = "focused"
	MoodCalm    = "calm"
)

// Clamp bounds v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v) || v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}
