package emotion

import (
	"regexp"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	moodWordDelta = 0.2
	energyPerMin  = 0.01
	minEnergy     = 0.2
	moodHigh      = 0.3
	moodLow       = -0.3
	energyExcited = 0.6
	initialEnergy = 0.5
)

// StateMachine updates the companion's mood and energy.
type StateMachine struct {
	positive []*regexp.Regexp
	negative []*regexp.Regexp
}

// NewStateMachine returns a StateMachine using the mood word lists of lex.
func NewStateMachine(lex *lexicon.Lexicon) *StateMachine {
	s := &StateMachine{}
	for _, w := range lex.Personality.PositiveMoodWords {
		s.positive = append(s.positive, wordPattern(w))
	}
	for _, w := range lex.Personality.NegativeMoodWords {
		s.negative = append(s.negative, wordPattern(w))
	}
	return s
}

// InitialState returns the resting state at now.
func InitialState(conversationID string, now time.Time) types.EmotionalState {
	return types.EmotionalState{
		ConversationID:  conversationID,
		Mood:            0,
		Energy:          initialEnergy,
		DominantEmotion: MoodCalm,
		LastUpdate:      now,
		LastDecay:       now,
	}
}

// MoodDelta returns the lexical mood shift carried by text.
func (s *StateMachine) MoodDelta(text string) float64 {
	delta := 0.0
	for _, re := range s.positive {
		delta += moodWordDelta * float64(len(re.FindAllStringIndex(text, -1)))
	}
	for _, re := range s.negative {
		delta -= moodWordDelta * float64(len(re.FindAllStringIndex(text, -1)))
	}
	return delta
}

// Update returns the state after reading text at now.
func (s *StateMachine) Update(state types.EmotionalState, text string, now time.Time) types.EmotionalState {
	state.Mood = Clamp((state.Mood+s.MoodDelta(text))/2, -1, 1)

	if !state.LastUpdate.IsZero() {
		idle := now.Sub(state.LastUpdate).Minutes()
		if idle > 0 {
			state.Energy -= energyPerMin * idle
		}
	}
	state.Energy = Clamp(state.Energy, minEnergy, 1)
	state.DominantEmotion = Quadrant(state.Mood, state.Energy)
	state.LastUpdate = now
	return state
}

// Quadrant classifies a mood/energy pair.
func Quadrant(mood, energy float64) string {
	switch {
	case mood > moodHigh:
		if energy > energyExcited {
			return MoodExcited
		}
		return MoodContent
	case mood < moodLow:
		if energy > energyExcited {
			return MoodAngry
		}
		return MoodSad
	default:
		if energy > energyExcited {
			return MoodFocused
		}
		return MoodCalm
	}
}

func wordPattern(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
}
