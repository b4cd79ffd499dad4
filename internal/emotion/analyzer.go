package emotion

import (
	"math"
	"math/rand"

	"github.com/easeaico/companion/internal/types"
)

// Analyzer tracks the emotion history of one conversation.
type Analyzer struct {
	detector *Detector
	rng      *rand.Rand
	history  []types.EmotionReading
}

// NewAnalyzer returns an Analyzer drawing fallback templates from rng.
func NewAnalyzer(detector *Detector, rng *rand.Rand) *Analyzer {
	return &Analyzer{detector: detector, rng: rng}
}

// Analyze detects the emotion in text and records it in the history.
func (a *Analyzer) Analyze(text string) types.EmotionReading {
	reading := a.detector.Detect(text)
	a.history = append(a.history, reading)
	if len(a.history) > HistorySize {
		a.history = a.history[len(a.history)-HistorySize:]
	}
	return reading
}

// History returns a copy of the recorded readings, oldest first.
func (a *Analyzer) History() []types.EmotionReading {
	out := make([]types.EmotionReading, len(a.history))
	copy(out, a.history)
	return out
}

// Trend summarizes the recorded readings.
func (a *Analyzer) Trend() types.EmotionTrend {
	if len(a.history) == 0 {
		return types.EmotionTrend{Dominant: Neutral, Stability: 1}
	}

	counts := make(map[string]int)
	lastSeen := make(map[string]int)
	var sumV, sumA float64
	for i, r := range a.history {
		counts[r.Primary]++
		lastSeen[r.Primary] = i
		sumV += r.Valence
		sumA += r.Arousal
	}
	dominant := ""
	for name, n := range counts {
		if dominant == "" || n > counts[dominant] || (n == counts[dominant] && lastSeen[name] > lastSeen[dominant]) {
			dominant = name
		}
	}

	n := float64(len(a.history))
	meanV := sumV / n
	var variance float64
	for _, r := range a.history {
		variance += (r.Valence - meanV) * (r.Valence - meanV)
	}
	variance /= n

	return types.EmotionTrend{
		Dominant:   dominant,
		AvgValence: meanV,
		AvgArousal: sumA / n,
		Stability:  1 - math.Min(math.Sqrt(variance), 1),
	}
}

// SuggestResponse picks a fallback reply for the reading's primary emotion.
func (a *Analyzer) SuggestResponse(reading types.EmotionReading) string {
	templates := a.detector.Templates(reading.Primary)
	if len(templates) == 0 {
		return ""
	}
	return templates[a.rng.Intn(len(templates))]
}

// Restore replaces the history, keeping the most recent HistorySize readings.
func (a *Analyzer) Restore(history []types.EmotionReading) {
	if len(history) > HistorySize {
		history = history[len(history)-HistorySize:]
	}
	a.history = append(a.history[:0], history...)
}
