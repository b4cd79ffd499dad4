// Package prompt composes generation requests from conversation state.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/companion/internal/emotion"
	"github.com/easeaico/companion/internal/types"
)

// Request is what the generation collaborator receives.
type Request struct {
	System  string
	History []types.Turn
	Message string
}

// Input contains all inputs for prompt assembly.
type Input struct {
	Personality string
	// Mood is the dominant emotional-state quadrant.
	Mood        string
	Emotion     types.EmotionReading
	Topic       string
	ToneHints   map[string]string
	Memories    []types.Memory
	Context     string
	History     []types.Turn
	Strategy    string
	Candidate   string
	Correction  string
	UserMessage string
}

type toneHint struct {
	Trait string
	Words string
}

// Builder assembles the system instruction and history for a reply.
type Builder struct {
	historyLimit int
	nowFunc      func() time.Time
}

// NewBuilder creates a prompt Builder.
func NewBuilder(historyLimit int) *Builder {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Builder{
		historyLimit: historyLimit,
		nowFunc:      time.Now,
	}
}

// Build renders in into a Request.
func (b *Builder) Build(in Input) (Request, error) {
	if strings.TrimSpace(in.UserMessage) == "" {
		return Request{}, types.NewValidationError("message", "cannot be empty")
	}

	history := make([]types.Turn, 0, len(in.History))
	for _, t := range in.History {
		if !t.Deleted {
			history = append(history, t)
		}
	}
	if len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}

	traits := make([]string, 0, len(in.ToneHints))
	for name := range in.ToneHints {
		traits = append(traits, name)
	}
	sort.Strings(traits)
	hints := make([]toneHint, 0, len(traits))
	for _, name := range traits {
		hints = append(hints, toneHint{Trait: name, Words: toneWords(in.ToneHints[name])})
	}

	feeling := ""
	if in.Emotion.Primary != "" && in.Emotion.Primary != emotion.Neutral {
		feeling = in.Emotion.Primary
	}

	now := b.nowFunc()
	data := struct {
		Personality     string
		Now             string
		TimeOfDay       string
		Mood            string
		MoodInstruction string
		Emotion         string
		Topic           string
		ToneHints       []toneHint
		Memories        []types.Memory
		Context         string
		Strategy        string
		Candidate       string
		Correction      string
	}{
		Personality:     in.Personality,
		Now:             now.Format(time.RFC3339),
		TimeOfDay:       timeOfDay(now),
		Mood:            in.Mood,
		MoodInstruction: emotion.MoodInstruction(in.Mood),
		Emotion:         feeling,
		Topic:           in.Topic,
		ToneHints:       hints,
		Memories:        in.Memories,
		Context:         in.Context,
		Strategy:        in.Strategy,
		Candidate:       in.Candidate,
		Correction:      in.Correction,
	}

	var buf bytes.Buffer
	if err := systemTemplate.Execute(&buf, data); err != nil {
		return Request{}, fmt.Errorf("failed to build prompt: %w", err)
	}
	return Request{System: buf.String(), History: history, Message: in.UserMessage}, nil
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "night"
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	case h < 22:
		return "evening"
	default:
		return "night"
	}
}
