package emotion

import (
	"math"
	"testing"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
)

func TestStateMachineBlendsMood(t *testing.T) {
	sm := NewStateMachine(lexicon.Default())
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state := InitialState("c1", now)

	state = sm.Update(state, "what a great and wonderful day", now)
	if math.Abs(state.Mood-0.2) > 1e-9 {
		t.Fatalf("expected mood 0.2, got %v", state.Mood)
	}
	if state.DominantEmotion != MoodCalm {
		t.Fatalf("expected calm, got %s", state.DominantEmotion)
	}
}

func TestStateMachineMoodIsClamped(t *testing.T) {
	sm := NewStateMachine(lexicon.Default())
	now := time.Now()
	state := InitialState("c1", now)
	text := "happy happy happy happy happy happy happy happy happy happy happy happy happy"
	for i := 0; i < 5; i++ {
		state = sm.Update(state, text, now)
	}
	if state.Mood > 1 || state.Mood < -1 {
		t.Fatalf("mood out of range: %v", state.Mood)
	}
}

func TestStateMachineEnergyDecaysWithIdleTime(t *testing.T) {
	sm := NewStateMachine(lexicon.Default())
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state := InitialState("c1", start)
	state.Energy = 0.9

	state = sm.Update(state, "ok", start.Add(10*time.Minute))
	if math.Abs(state.Energy-0.8) > 1e-9 {
		t.Fatalf("expected energy 0.8, got %v", state.Energy)
	}

	state = sm.Update(state, "ok", start.Add(3*time.Hour))
	if state.Energy != minEnergy {
		t.Fatalf("expected energy floor %v, got %v", minEnergy, state.Energy)
	}
}

func TestQuadrant(t *testing.T) {
	cases := []struct {
		mood, energy float64
		want         string
	}{
		{0.5, 0.8, MoodExcited},
		{0.5, 0.4, MoodContent},
		{-0.5, 0.8, MoodAngry},
		{-0.5, 0.4, MoodSad},
		{0, 0.8, MoodFocused},
		{0, 0.4, MoodCalm},
	}
	for _, c := range cases {
		if got := Quadrant(c.mood, c.energy); got != c.want {
			t.Fatalf("Quadrant(%v, %v): expected %s, got %s", c.mood, c.energy, c.want, got)
		}
	}
}
