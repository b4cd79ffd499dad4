// Package personality maintains the companion's trait vector and emotional state.
package personality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/companion/internal/emotion"
	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	recentResponseLimit = 5
	dominantTraitCount  = 3
	dominantTraitFloor  = 70
	moodConflictLevel   = 0.3

	ReasonMoodMismatch  = "Response emotion does not match current emotional state"
	ReasonTraitConflict = "Response conflicts with dominant personality traits"
)

// Config bounds and rates for trait evolution.
type Config struct {
	MinValue  float64
	MaxValue  float64
	DecayRate float64
	BoostRate float64
}

// DefaultConfig returns the stock trait settings.
func DefaultConfig() Config {
	return Config{MinValue: 0, MaxValue: 100, DecayRate: 0.1, BoostRate: 0.2}
}

// Consistency is the result of checking a candidate reply.
type Consistency struct {
	IsConsistent bool
	Reason       string
}

type edge struct {
	to     string
	weight float64
}

// Manager owns the trait vector and emotional state of one conversation.
type Manager struct {
	cfg            Config
	conversationID string
	order          []string
	baselines      map[string]float64
	values         map[string]float64
	tone           map[string]*regexp.Regexp
	patterns       map[string]string
	graph          map[string][]edge
	positiveTone   *regexp.Regexp
	negativeTone   *regexp.Regexp
	machine        *emotion.StateMachine
	state          types.EmotionalState
	recent         []string
}

// NewManager returns a Manager with every trait at its baseline.
func NewManager(cfg Config, lex *lexicon.Lexicon, conversationID string, now time.Time) *Manager {
	m := &Manager{
		cfg:            cfg,
		conversationID: conversationID,
		baselines:      make(map[string]float64),
		values:         make(map[string]float64),
		tone:           make(map[string]*regexp.Regexp),
		patterns:       make(map[string]string),
		graph:          make(map[string][]edge),
		positiveTone:   regexp.MustCompile(lexicon.WordPattern(lex.Personality.PositiveTone)),
		negativeTone:   regexp.MustCompile(lexicon.WordPattern(lex.Personality.NegativeTone)),
		machine:        emotion.NewStateMachine(lex),
		state:          emotion.InitialState(conversationID, now),
	}
	for _, t := range lex.Personality.Traits {
		m.order = append(m.order, t.Name)
		m.baselines[t.Name] = t.Baseline
		m.values[t.Name] = t.Baseline
		if t.Pattern != "" {
			m.tone[t.Name] = regexp.MustCompile(lexicon.WordPattern(t.Pattern))
			m.patterns[t.Name] = t.Pattern
		}
	}
	for _, e := range lex.Personality.Interactions {
		m.graph[e.A] = append(m.graph[e.A], edge{to: e.B, weight: e.Weight})
		m.graph[e.B] = append(m.graph[e.B], edge{to: e.A, weight: e.Weight})
	}
	return m
}

// Value returns the current value of a trait.
func (m *Manager) Value(name string) (float64, bool) {
	v, ok := m.values[name]
	return v, ok
}

// SetAttribute sets a trait, clamps it and pushes the new value, scaled by the
// edge weight, onto each direct neighbor. Neighbors do not propagate further.
func (m *Manager) SetAttribute(name string, value float64) error {
	if _, ok := m.values[name]; !ok {
		return types.NewValidationError("trait", fmt.Sprintf("unknown trait %q", name))
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return types.NewValidationError("value", "must be a finite number")
	}
	m.values[name] = m.clamp(value)
	for _, e := range m.graph[name] {
		m.values[e.to] = m.clamp(m.values[e.to] + m.values[name]*e.weight)
	}
	return nil
}

// AdjustAttribute shifts a trait by delta.
func (m *Manager) AdjustAttribute(name string, delta float64) error {
	old, ok := m.values[name]
	if !ok {
		return types.NewValidationError("trait", fmt.Sprintf("unknown trait %q", name))
	}
	return m.SetAttribute(name, old+delta)
}

// BoostAttribute shifts a trait by amount scaled with the boost rate.
func (m *Manager) BoostAttribute(name string, amount float64) error {
	return m.AdjustAttribute(name, amount*m.cfg.BoostRate)
}

// DecayAttributes pulls every trait toward its baseline. It is a no-op when less
// than an hour has passed since the last decay tick.
func (m *Manager) DecayAttributes(now time.Time) bool {
	elapsed := now.Sub(m.state.LastDecay)
	if elapsed < time.Hour {
		return false
	}
	fraction := math.Min(m.cfg.DecayRate*elapsed.Hours(), 1)
	for name, v := range m.values {
		m.values[name] = m.clamp(v - (v-m.baselines[name])*fraction)
	}
	m.state.LastDecay = now
	return true
}

// UpdateEmotionalState folds the mood carried by text into the emotional state.
func (m *Manager) UpdateEmotionalState(text string, now time.Time) types.EmotionalState {
	m.state = m.machine.Update(m.state, text, now)
	return m.state
}

// EmotionalState returns the current emotional state.
func (m *Manager) EmotionalState() types.EmotionalState {
	return m.state
}

// CheckResponseConsistency tests a candidate reply against mood and dominant traits.
// Every candidate passes until a reply has been recorded with AddResponse.
func (m *Manager) CheckResponseConsistency(candidate string) Consistency {
	if len(m.recent) == 0 {
		return Consistency{IsConsistent: true}
	}
	switch {
	case m.state.Mood > moodConflictLevel && m.negativeTone.MatchString(candidate):
		return Consistency{Reason: ReasonMoodMismatch}
	case m.state.Mood < -moodConflictLevel && m.positiveTone.MatchString(candidate):
		return Consistency{Reason: ReasonMoodMismatch}
	}

	for _, name := range m.DominantTraits() {
		if m.values[name] <= dominantTraitFloor {
			continue
		}
		if re, ok := m.tone[name]; ok && !re.MatchString(candidate) {
			return Consistency{Reason: ReasonTraitConflict}
		}
	}
	return Consistency{IsConsistent: true}
}

// DominantTraits returns the highest valued traits, ties in declaration order.
func (m *Manager) DominantTraits() []string {
	names := append([]string(nil), m.order...)
	sort.SliceStable(names, func(i, j int) bool { return m.values[names[i]] > m.values[names[j]] })
	if len(names) > dominantTraitCount {
		names = names[:dominantTraitCount]
	}
	return names
}

// ToneHints returns the tone patterns a reply must satisfy for the dominant traits.
func (m *Manager) ToneHints() map[string]string {
	hints := make(map[string]string)
	for _, name := range m.DominantTraits() {
		if p, ok := m.patterns[name]; ok && m.values[name] > dominantTraitFloor {
			hints[name] = p
		}
	}
	return hints
}

// AddResponse records an accepted reply.
func (m *Manager) AddResponse(text string) {
	m.recent = append(m.recent, text)
	if len(m.recent) > recentResponseLimit {
		m.recent = m.recent[len(m.recent)-recentResponseLimit:]
	}
}

// RecentResponses returns the last accepted replies, oldest first.
func (m *Manager) RecentResponses() []string {
	return append([]string(nil), m.recent...)
}

// Attributes returns the trait vector in declaration order.
func (m *Manager) Attributes() []types.PersonalityAttribute {
	out := make([]types.PersonalityAttribute, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, types.PersonalityAttribute{ConversationID: m.conversationID, Name: name, Value: m.values[name]})
	}
	return out
}

// Restore loads persisted traits and state. Unknown traits are ignored.
func (m *Manager) Restore(attrs []types.PersonalityAttribute, state *types.EmotionalState) {
	for _, a := range attrs {
		if _, ok := m.values[a.Name]; ok {
			m.values[a.Name] = m.clamp(a.Value)
		}
	}
	if state != nil {
		m.state = *state
		m.state.ConversationID = m.conversationID
	}
}

// Snapshot renders the dominant traits and emotional state for prompts and state queries.
func (m *Manager) Snapshot() string {
	names := m.DominantTraits()
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s (%d%%)", name, int(math.Round(m.values[name]))))
	}
	return fmt.Sprintf("Current personality traits: %s\nEmotional state: %s (mood: %d%%, energy: %d%%)",
		strings.Join(parts, ", "),
		m.state.DominantEmotion,
		int(math.Round(m.state.Mood*100)),
		int(math.Round(m.state.Energy*100)))
}

func (m *Manager) clamp(v float64) float64 {
	return emotion.Clamp(v, m.cfg.MinValue, m.cfg.MaxValue)
}
