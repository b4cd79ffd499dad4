// Package topic tracks which topics a conversation covers and how it moves between them.
package topic

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	contextHistoryLimit = 5
	historyLimit        = 5
	statsLimit          = 5
	suggestionLimit     = 3
	suggestionFloor     = 0.3
	idleThreshold       = 24 * time.Hour
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Update describes the effect of one message on the topic state.
type Update struct {
	Dominant   string
	Transition *types.TopicTransition
	Touched    []types.Topic
}

// Summary is a read model of the topic state.
type Summary struct {
	CurrentTopic  string
	RecentHistory []string
	TopTopics     []types.Topic
	Suggestions   []string
}

// Manager tracks topics of one conversation.
type Manager struct {
	conversationID string
	patterns       []*regexp.Regexp
	forced         []string
	suggested      []string
	topics         map[string]*types.Topic
	mentions       map[string]*regexp.Regexp
	order          []string
	current        string
	history        []string
	transitions    []types.TopicTransition
}

// NewManager returns an empty Manager.
func NewManager(lex *lexicon.Lexicon, conversationID string) *Manager {
	m := &Manager{
		conversationID: conversationID,
		forced:         lex.Topics.ForcedPhrases,
		suggested:      lex.Topics.SuggestedPhrases,
		topics:         make(map[string]*types.Topic),
		mentions:       make(map[string]*regexp.Regexp),
	}
	for _, p := range lex.Topics.ExtractionPatterns {
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return m
}

// CurrentTopic returns the dominant topic of the latest message.
func (m *Manager) CurrentTopic() string {
	return m.current
}

// UpdateTopic detects topics in content and updates statistics and transitions.
func (m *Manager) UpdateTopic(content string, sentiment float64, now time.Time) (Update, error) {
	if strings.TrimSpace(content) == "" {
		return Update{}, types.NewValidationError("content", "cannot be empty")
	}
	if math.IsNaN(sentiment) || math.IsInf(sentiment, 0) {
		return Update{}, types.NewValidationError("sentiment", "must be a finite number")
	}
	sentiment = math.Max(-1, math.Min(1, sentiment))

	names, mentions := m.detect(content)
	if len(names) == 0 {
		return Update{}, nil
	}
	dominant := m.dominant(names, mentions, now)

	update := Update{Dominant: dominant}
	if m.current != "" && dominant != m.current {
		tr := types.TopicTransition{
			ConversationID: m.conversationID,
			FromTopic:      m.current,
			ToTopic:        dominant,
			Timestamp:      now,
			Kind:           m.classify(content),
			Context:        content,
		}
		m.transitions = append(m.transitions, tr)
		update.Transition = &tr
	}

	t := m.touch(dominant, names, content, sentiment, m.current == dominant, now)
	update.Touched = append(update.Touched, *t)

	if dominant != m.current {
		m.current = dominant
		m.pushHistory(dominant)
	}
	return update, nil
}

// detect returns detected topic names in first-seen order with their mention counts.
func (m *Manager) detect(content string) ([]string, map[string]int) {
	lower := strings.ToLower(content)
	mentions := make(map[string]int)
	var names []string
	add := func(name string, n int) {
		if _, ok := mentions[name]; !ok {
			names = append(names, name)
		}
		mentions[name] += n
	}

	for _, name := range m.order {
		if n := len(m.mentionPattern(name).FindAllStringIndex(lower, -1)); n > 0 {
			add(name, n)
		}
	}
	for _, sentence := range sentenceSplit.Split(lower, -1) {
		for _, re := range m.patterns {
			for _, match := range re.FindAllStringSubmatch(sentence, -1) {
				if len(match) > 1 && len(match[1]) > 2 {
					if _, known := m.topics[match[1]]; !known {
						add(match[1], 1)
					}
				}
			}
		}
	}
	return names, mentions
}

func (m *Manager) mentionPattern(name string) *regexp.Regexp {
	re, ok := m.mentions[name]
	if !ok {
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
		m.mentions[name] = re
	}
	return re
}

func (m *Manager) pushHistory(name string) {
	m.history = append(m.history, name)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

func (m *Manager) dominant(names []string, mentions map[string]int, now time.Time) string {
	if len(names) == 1 {
		return names[0]
	}
	best, bestScore := "", math.Inf(-1)
	for _, name := range names {
		score := 2 * float64(mentions[name])
		if t, ok := m.topics[name]; ok {
			score += 0.5 * float64(t.Frequency)
			score -= math.Min(0.1*now.Sub(t.LastDiscussed).Hours(), 5)
			if t.Sentiment > 0 {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = name, score
		}
	}
	return best
}

func (m *Manager) classify(content string) string {
	lower := strings.ToLower(content)
	for _, p := range m.forced {
		if strings.Contains(lower, p) {
			return types.TransitionForced
		}
	}
	for _, p := range m.suggested {
		if strings.Contains(lower, p) {
			return types.TransitionSuggested
		}
	}
	return types.TransitionNatural
}

// touch updates the statistics of the dominant topic and links the topics
// mentioned alongside it.
func (m *Manager) touch(name string, coMentioned []string, content string, sentiment float64, wasCurrent bool, now time.Time) *types.Topic {
	t, ok := m.topics[name]
	if !ok {
		t = &types.Topic{ConversationID: m.conversationID, Name: name, Sentiment: sentiment}
		m.topics[name] = t
		m.order = append(m.order, name)
	} else {
		if wasCurrent && now.After(t.LastDiscussed) {
			t.Duration += now.Sub(t.LastDiscussed).Seconds()
		}
		t.Sentiment += (sentiment - t.Sentiment) / float64(t.Frequency+1)
	}
	t.Frequency++
	t.LastDiscussed = now

	t.ContextHistory = append(t.ContextHistory, content)
	if len(t.ContextHistory) > contextHistoryLimit {
		t.ContextHistory = t.ContextHistory[len(t.ContextHistory)-contextHistoryLimit:]
	}
	for _, other := range coMentioned {
		if other != name && !contains(t.RelatedTopics, other) {
			t.RelatedTopics = append(t.RelatedTopics, other)
		}
	}
	return t
}

// SuggestTopicTransitions ranks known topics as follow-ups to topic.
func (m *Manager) SuggestTopicTransitions(topic string, now time.Time) []string {
	type candidate struct {
		name  string
		score float64
	}
	from := m.topics[topic]
	var candidates []candidate
	for _, name := range m.order {
		if name == topic {
			continue
		}
		t := m.topics[name]
		score := 0.0
		if (from != nil && contains(from.RelatedTopics, name)) || contains(t.RelatedTopics, topic) {
			score += 0.3
		}
		if t.Sentiment > 0 {
			score += 0.2
		}
		if now.Sub(t.LastDiscussed) > idleThreshold {
			score += 0.2
		}
		score += math.Min(0.1*float64(t.Frequency), 0.3)
		if score > suggestionFloor {
			candidates = append(candidates, candidate{name: name, score: score})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > suggestionLimit {
		candidates = candidates[:suggestionLimit]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.name)
	}
	return out
}

// Summary reports the current topic, recent dominant topics, top topics and suggestions.
func (m *Manager) Summary(now time.Time) Summary {
	s := Summary{
		CurrentTopic:  m.current,
		RecentHistory: append([]string(nil), m.history...),
	}
	top := m.Topics()
	sort.SliceStable(top, func(i, j int) bool { return top[i].Frequency > top[j].Frequency })
	if len(top) > statsLimit {
		top = top[:statsLimit]
	}
	s.TopTopics = top
	if m.current != "" {
		s.Suggestions = m.SuggestTopicTransitions(m.current, now)
	}
	return s
}

// Topics returns the tracked topics in first-seen order.
func (m *Manager) Topics() []types.Topic {
	out := make([]types.Topic, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, cloneTopic(*m.topics[name]))
	}
	return out
}

// Transitions returns the transition log, oldest first.
func (m *Manager) Transitions() []types.TopicTransition {
	return append([]types.TopicTransition(nil), m.transitions...)
}

// Load restores persisted topics and transitions.
func (m *Manager) Load(topics []types.Topic, transitions []types.TopicTransition) {
	m.topics = make(map[string]*types.Topic, len(topics))
	m.order = nil
	m.current = ""
	m.history = nil
	var latest time.Time
	for i := range topics {
		t := cloneTopic(topics[i])
		m.topics[t.Name] = &t
		m.order = append(m.order, t.Name)
		if t.Frequency > 0 && t.LastDiscussed.After(latest) {
			latest = t.LastDiscussed
			m.current = t.Name
		}
	}
	m.transitions = append([]types.TopicTransition(nil), transitions...)
	if len(m.transitions) == 0 {
		if m.current != "" {
			m.pushHistory(m.current)
		}
		return
	}
	m.pushHistory(m.transitions[0].FromTopic)
	for _, tr := range m.transitions {
		m.pushHistory(tr.ToTopic)
	}
	m.current = m.transitions[len(m.transitions)-1].ToTopic
}

func cloneTopic(t types.Topic) types.Topic {
	t.RelatedTopics = append([]string(nil), t.RelatedTopics...)
	t.ContextHistory = append([]string(nil), t.ContextHistory...)
	return t
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
