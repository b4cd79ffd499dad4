// Package dialogue keeps the sliding window of recent turns and judges topic continuity.
package dialogue

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	gapThreshold     = 30 * time.Minute
	summaryTopics    = 3
	summaryTurns     = 3
	summaryMaxChars  = 100
	recentContext    = 5
	topicDecayFactor = 0.8

	noActiveContext = "No active context."
)

// Config tunes the context window.
type Config struct {
	MaxContextWindow      int
	ContextRetentionHours int
	TopicChangeThreshold  float64
	MaxTopicDistance      float64
}

// DefaultConfig returns the stock window settings.
func DefaultConfig() Config {
	return Config{
		MaxContextWindow:      10,
		ContextRetentionHours: 24,
		TopicChangeThreshold:  0.7,
		MaxTopicDistance:      0.8,
	}
}

// Continuity describes how well consecutive turns hang together.
type Continuity struct {
	IsCoherent  bool
	Gaps        []string
	TopicShifts []string
}

// Manager holds the recent turns of one conversation and a live topic vector.
type Manager struct {
	cfg    Config
	topics []lexicon.WeightedTopic
	turns  []types.Turn
	active map[string]float64
}

// NewManager returns an empty Manager.
func NewManager(cfg Config, lex *lexicon.Lexicon) *Manager {
	if cfg.MaxContextWindow <= 0 {
		cfg.MaxContextWindow = DefaultConfig().MaxContextWindow
	}
	return &Manager{
		cfg:    cfg,
		topics: lex.ContextTopics,
		active: make(map[string]float64),
	}
}

// AddMessage appends turn to the window, evicting the oldest turn on overflow.
func (m *Manager) AddMessage(turn types.Turn) error {
	if strings.TrimSpace(turn.Content) == "" {
		return types.NewValidationError("content", "cannot be empty")
	}
	m.turns = append(m.turns, turn)
	if len(m.turns) > m.cfg.MaxContextWindow {
		m.turns = m.turns[len(m.turns)-m.cfg.MaxContextWindow:]
	}
	m.UpdateCurrentTopics(m.AnalyzeTopics(turn.Content))
	return nil
}

// AnalyzeTopics scores text against the context topic table.
func (m *Manager) AnalyzeTopics(text string) map[string]float64 {
	words := strings.Fields(strings.ToLower(text))
	scores := make(map[string]float64)
	for _, topic := range m.topics {
		if len(topic.Keywords) == 0 {
			continue
		}
		matches := 0
		for _, kw := range topic.Keywords {
			for _, w := range words {
				if strings.Contains(w, kw) {
					matches++
				}
			}
		}
		if matches > 0 {
			scores[topic.Name] = float64(matches) * topic.Weight / float64(len(topic.Keywords))
		}
	}
	return scores
}

// UpdateCurrentTopics decays the live topic vector and adds scores to it.
func (m *Manager) UpdateCurrentTopics(scores map[string]float64) {
	for name := range m.active {
		m.active[name] *= topicDecayFactor
	}
	for name, s := range scores {
		m.active[name] += s
	}
}

// CurrentTopics returns a copy of the live topic vector.
func (m *Manager) CurrentTopics() map[string]float64 {
	out := make(map[string]float64, len(m.active))
	for k, v := range m.active {
		out[k] = v
	}
	return out
}

// CalculateTopicDistance returns the L1 distance between two topic vectors where each
// key is weighted by its larger score, normalized by the total weight. Identical
// vectors score 0. Two empty vectors are defined to be fully disjoint.
func CalculateTopicDistance(a, b map[string]float64) float64 {
	var total, weighted float64
	seen := make(map[string]bool, len(a)+len(b))
	for _, set := range []map[string]float64{a, b} {
		for k := range set {
			if seen[k] {
				continue
			}
			seen[k] = true
			weight := math.Max(a[k], b[k])
			total += weight
			weighted += math.Abs(a[k]-b[k]) * weight
		}
	}
	if total <= 0 {
		return 1
	}
	return math.Min(weighted/total, 1)
}

// AnalyzeContextContinuity walks consecutive turns looking for time gaps and topic shifts.
func (m *Manager) AnalyzeContextContinuity() Continuity {
	result := Continuity{IsCoherent: true}
	var prev *types.Turn
	for i := range m.turns {
		cur := &m.turns[i]
		if cur.Deleted {
			continue
		}
		if prev == nil {
			prev = cur
			continue
		}

		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap > gapThreshold {
			result.Gaps = append(result.Gaps, fmt.Sprintf("Time gap of %d minutes detected", int(gap.Minutes())))
			result.IsCoherent = false
		}

		prevTopics := m.AnalyzeTopics(prev.Content)
		curTopics := m.AnalyzeTopics(cur.Content)
		distance := CalculateTopicDistance(prevTopics, curTopics)
		if distance > m.cfg.TopicChangeThreshold {
			result.TopicShifts = append(result.TopicShifts, fmt.Sprintf("Topic shift from %s to %s",
				strings.Join(topTopics(prevTopics, 2), "/"), strings.Join(topTopics(curTopics, 2), "/")))
		}
		if distance > m.cfg.MaxTopicDistance {
			result.IsCoherent = false
		}
		prev = cur
	}
	return result
}

// PruneOldContext drops turns older than the retention window and reports how many were removed.
func (m *Manager) PruneOldContext(now time.Time) int {
	cutoff := now.Add(-time.Duration(m.cfg.ContextRetentionHours) * time.Hour)
	kept := m.turns[:0]
	for _, t := range m.turns {
		if !t.Timestamp.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	removed := len(m.turns) - len(kept)
	m.turns = kept
	return removed
}

// Turns returns a copy of the window, oldest first.
func (m *Manager) Turns() []types.Turn {
	out := make([]types.Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

// Recent returns up to n of the latest non-deleted turns, oldest first.
func (m *Manager) Recent(n int) []types.Turn {
	var out []types.Turn
	for i := len(m.turns) - 1; i >= 0 && len(out) < n; i-- {
		if !m.turns[i].Deleted {
			out = append(out, m.turns[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// RelevantContext returns the latest turns plus older window turns whose topic distance
// to query stays below the topic change threshold, closest first.
func (m *Manager) RelevantContext(query string) []types.Turn {
	recent := m.Recent(recentContext)
	picked := make(map[string]bool, len(recent))
	for _, t := range recent {
		picked[t.ID] = true
	}

	queryTopics := m.AnalyzeTopics(query)
	type scored struct {
		turn     types.Turn
		distance float64
	}
	var extra []scored
	for _, t := range m.turns {
		if t.Deleted || picked[t.ID] {
			continue
		}
		d := CalculateTopicDistance(queryTopics, m.AnalyzeTopics(t.Content))
		if d < m.cfg.TopicChangeThreshold {
			extra = append(extra, scored{turn: t, distance: d})
		}
	}
	sort.SliceStable(extra, func(i, j int) bool { return extra[i].distance < extra[j].distance })

	out := recent
	for _, s := range extra {
		out = append(out, s.turn)
	}
	return out
}

// Summary describes the live topics and the last few turns.
func (m *Manager) Summary() string {
	if len(m.Recent(1)) == 0 {
		return noActiveContext
	}
	var sb strings.Builder
	names := topTopics(m.active, summaryTopics)
	if len(names) > 0 {
		parts := make([]string, 0, len(names))
		for _, n := range names {
			parts = append(parts, fmt.Sprintf("%s (%d%%)", n, int(math.Round(m.active[n]*100))))
		}
		sb.WriteString("Current topics: ")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString("\n")
	}
	recent := m.Recent(summaryTurns)
	if len(recent) > 0 {
		sb.WriteString("Recent messages:\n")
		for _, t := range recent {
			sb.WriteString(fmt.Sprintf("%s: %s\n", t.Role, truncate(t.Content, summaryMaxChars)))
		}
	}
	return strings.TrimSpace(sb.String())
}

// Restore replaces the window with turns, keeping the newest MaxContextWindow.
func (m *Manager) Restore(turns []types.Turn) {
	m.turns = nil
	m.active = make(map[string]float64)
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		_ = m.AddMessage(t)
	}
}

func topTopics(scores map[string]float64, n int) []string {
	names := make([]string, 0, len(scores))
	for k := range scores {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		if scores[names[i]] == scores[names[j]] {
			return names[i] < names[j]
		}
		return scores[names[i]] > scores[names[j]]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
