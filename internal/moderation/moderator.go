// Package moderation screens messages for length, banned words, sensitive topics and toxicity.
package moderation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	weightToxicity  = 0.4
	weightProfanity = 0.3
	weightSensitive = 0.2
	weightBanned    = 0.1
	bannedSaturate  = 5
)

// Config holds thresholds and word lists.
type Config struct {
	MaxMessageLength   int
	ToxicityThreshold  float64
	ProfanityThreshold float64
	BannedWords        []string
	WarningWords       []string
	SensitiveTopics    []string
	ToxicIndicators    []string
}

// DefaultConfig returns the stock thresholds with the word lists of lex.
func DefaultConfig(lex *lexicon.Lexicon) Config {
	return Config{
		MaxMessageLength:   1000,
		ToxicityThreshold:  0.8,
		ProfanityThreshold: 0.7,
		BannedWords:        append([]string(nil), lex.Moderation.BannedWords...),
		WarningWords:       append([]string(nil), lex.Moderation.WarningWords...),
		SensitiveTopics:    append([]string(nil), lex.Moderation.SensitiveTopics...),
		ToxicIndicators:    append([]string(nil), lex.Moderation.ToxicIndicators...),
	}
}

// Stats aggregates moderation outcomes.
type Stats struct {
	Total        int
	Blocked      int
	AverageScore float64
	CommonIssues map[string]int
}

// Moderator is safe for concurrent use.
type Moderator struct {
	mu     sync.RWMutex
	cfg    Config
	banned []*regexp.Regexp

	statsMu  sync.Mutex
	total    int
	blocked  int
	scoreSum float64
	issues   map[string]int
}

// NewModerator returns a Moderator for cfg.
func NewModerator(cfg Config) *Moderator {
	m := &Moderator{issues: make(map[string]int)}
	m.apply(cfg)
	return m
}

func (m *Moderator) apply(cfg Config) {
	cfg.BannedWords = normalizeList(cfg.BannedWords)
	cfg.WarningWords = normalizeList(cfg.WarningWords)
	cfg.SensitiveTopics = normalizeList(cfg.SensitiveTopics)
	cfg.ToxicIndicators = normalizeList(cfg.ToxicIndicators)
	m.cfg = cfg
	m.banned = m.banned[:0]
	for _, w := range cfg.BannedWords {
		m.banned = append(m.banned, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(w)))
	}
}

// Moderate evaluates text and returns the verdict.
func (m *Moderator) Moderate(text string) types.ModerationVerdict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	verdict := types.ModerationVerdict{
		IsAllowed:       true,
		FilteredContent: text,
		DetectedIssues: map[string]bool{
			types.IssueProfanity:       false,
			types.IssueToxicity:        false,
			types.IssueSensitiveTopics: false,
			types.IssueLength:          false,
			types.IssueBannedWords:     false,
		},
	}

	if m.cfg.MaxMessageLength > 0 && len([]rune(text)) > m.cfg.MaxMessageLength {
		verdict.IsAllowed = false
		verdict.DetectedIssues[types.IssueLength] = true
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("Message exceeds maximum length of %d characters", m.cfg.MaxMessageLength))
	}

	lower := strings.ToLower(text)
	bannedCount := 0
	for _, re := range m.banned {
		if re.MatchString(text) {
			bannedCount++
			verdict.FilteredContent = re.ReplaceAllStringFunc(verdict.FilteredContent, func(s string) string {
				return strings.Repeat("*", len([]rune(s)))
			})
		}
	}
	if bannedCount > 0 {
		verdict.IsAllowed = false
		verdict.DetectedIssues[types.IssueBannedWords] = true
		verdict.Warnings = append(verdict.Warnings, "Message contains banned words")
	}

	var sensitive []string
	for _, topic := range m.cfg.SensitiveTopics {
		if strings.Contains(lower, topic) {
			sensitive = append(sensitive, topic)
		}
	}
	if len(sensitive) > 0 {
		verdict.DetectedIssues[types.IssueSensitiveTopics] = true
		verdict.Warnings = append(verdict.Warnings, "Message contains sensitive topics: "+strings.Join(sensitive, ", "))
	}

	words := tokenize(lower)
	toxicity := ratio(words, m.cfg.ToxicIndicators)
	if toxicity > m.cfg.ToxicityThreshold {
		verdict.IsAllowed = false
		verdict.DetectedIssues[types.IssueToxicity] = true
		verdict.Warnings = append(verdict.Warnings, "Message contains toxic content")
	}
	profanity := ratio(words, m.cfg.WarningWords)
	if profanity > m.cfg.ProfanityThreshold {
		verdict.DetectedIssues[types.IssueProfanity] = true
		verdict.Warnings = append(verdict.Warnings, "Message contains potentially inappropriate language")
	}

	sensitiveScore := 0.0
	if len(sensitive) > 0 {
		sensitiveScore = 1
	}
	score := weightToxicity*toxicity +
		weightProfanity*profanity +
		weightSensitive*sensitiveScore +
		weightBanned*math.Min(float64(bannedCount)/bannedSaturate, 1)
	verdict.ModerationScore = math.Max(0, math.Min(score, 1))

	m.record(verdict)
	return verdict
}

func (m *Moderator) record(v types.ModerationVerdict) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.total++
	if !v.IsAllowed {
		m.blocked++
	}
	m.scoreSum += v.ModerationScore
	for issue, hit := range v.DetectedIssues {
		if hit {
			m.issues[issue]++
		}
	}
}

// Stats returns aggregate counts since creation.
func (m *Moderator) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	s := Stats{Total: m.total, Blocked: m.blocked, CommonIssues: make(map[string]int, len(m.issues))}
	if m.total > 0 {
		s.AverageScore = m.scoreSum / float64(m.total)
	}
	for k, v := range m.issues {
		s.CommonIssues[k] = v
	}
	return s
}

// UpdateConfig replaces thresholds and word lists.
func (m *Moderator) UpdateConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apply(cfg)
}

// AddBannedWords extends the banned word list.
func (m *Moderator) AddBannedWords(words ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg
	cfg.BannedWords = append(append([]string(nil), cfg.BannedWords...), words...)
	m.apply(cfg)
}

// Config returns the active configuration.
func (m *Moderator) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func ratio(words, list []string) float64 {
	if len(words) == 0 || len(list) == 0 {
		return 0
	}
	set := make(map[string]bool, len(list))
	for _, w := range list {
		set[w] = true
	}
	hits := 0
	for _, w := range words {
		if set[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}

func normalizeList(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, w := range list {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
