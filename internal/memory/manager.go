// Package memory scores, stores and retrieves what the companion remembers about a conversation.
package memory

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const snapshotSize = 3

// Config bounds the memory store.
type Config struct {
	MaxMemories         int
	MinImportance       float64
	SimilarityThreshold float64
}

// DefaultConfig returns the stock memory settings.
func DefaultConfig() Config {
	return Config{MaxMemories: 100, MinImportance: 0.3, SimilarityThreshold: 0.7}
}

// Manager holds the memories of one conversation.
type Manager struct {
	cfg            Config
	conversationID string
	memories       []types.Memory
	positive       []string
	negative       []string
	scoreFunc      func(content, context string) float64
	newID          func() string
}

// NewManager returns an empty Manager.
func NewManager(cfg Config, lex *lexicon.Lexicon, conversationID string) *Manager {
	if cfg.MaxMemories <= 0 {
		cfg.MaxMemories = DefaultConfig().MaxMemories
	}
	s := newScorer(lex)
	return &Manager{
		cfg:            cfg,
		conversationID: conversationID,
		positive:       lex.Memory.PositiveSentiment,
		negative:       lex.Memory.NegativeSentiment,
		scoreFunc:      s.importanceOf,
		newID:          uuid.NewString,
	}
}

// CalculateImportance scores content in its context.
func (m *Manager) CalculateImportance(content, context string) float64 {
	return m.scoreFunc(content, context)
}

// AddMemory stores content when it is important enough. It returns the stored memory,
// or nil when the content scored below the threshold or was itself evicted, plus any
// memories evicted to respect the cap.
func (m *Manager) AddMemory(content, context string, attributes []string, now time.Time) (*types.Memory, []types.Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, types.NewValidationError("content", "cannot be empty")
	}
	importance := m.CalculateImportance(content, context)
	if importance < m.cfg.MinImportance {
		return nil, nil, nil
	}

	mem := types.Memory{
		ID:                   m.newID(),
		ConversationID:       m.conversationID,
		Content:              content,
		Importance:           importance,
		Context:              context,
		Sentiment:            m.sentimentOf(content),
		AssociatedAttributes: append([]string(nil), attributes...),
		CreatedAt:            now,
		LastAccessed:         now,
	}
	m.memories = append(m.memories, mem)
	evicted := m.pruneOldMemories()

	for _, e := range evicted {
		if e.ID == mem.ID {
			return nil, evicted, nil
		}
	}
	return &mem, evicted, nil
}

// pruneOldMemories evicts the least important memories beyond the cap, oldest first on ties.
func (m *Manager) pruneOldMemories() []types.Memory {
	excess := len(m.memories) - m.cfg.MaxMemories
	if excess <= 0 {
		return nil
	}
	order := make([]int, len(m.memories))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ma, mb := m.memories[order[a]], m.memories[order[b]]
		if ma.Importance != mb.Importance {
			return ma.Importance < mb.Importance
		}
		return ma.CreatedAt.Before(mb.CreatedAt)
	})

	drop := make(map[int]bool, excess)
	evicted := make([]types.Memory, 0, excess)
	for _, idx := range order[:excess] {
		drop[idx] = true
		evicted = append(evicted, m.memories[idx])
	}
	kept := make([]types.Memory, 0, m.cfg.MaxMemories)
	for i, mem := range m.memories {
		if !drop[i] {
			kept = append(kept, mem)
		}
	}
	m.memories = kept
	return evicted
}

// RelevantMemories returns up to limit memories matching query, most important first,
// and marks them accessed at now. queryVec may be nil.
func (m *Manager) RelevantMemories(query string, queryVec []float32, limit int, now time.Time) []types.Memory {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || limit <= 0 {
		return nil
	}
	terms := queryTerms(query)

	var idx []int
	for i, mem := range m.memories {
		if m.matches(mem, query, terms) || cosine(queryVec, mem.Embedding) >= m.cfg.SimilarityThreshold {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ma, mb := m.memories[idx[a]], m.memories[idx[b]]
		if ma.Importance != mb.Importance {
			return ma.Importance > mb.Importance
		}
		return ma.LastAccessed.After(mb.LastAccessed)
	})
	if len(idx) > limit {
		idx = idx[:limit]
	}

	out := make([]types.Memory, 0, len(idx))
	for _, i := range idx {
		m.memories[i].LastAccessed = now
		out = append(out, m.memories[i])
	}
	return out
}

// SetEmbedding attaches vec to the memory with id. It reports whether the memory exists.
func (m *Manager) SetEmbedding(id string, vec []float32) bool {
	for i := range m.memories {
		if m.memories[i].ID == id {
			m.memories[i].Embedding = append([]float32(nil), vec...)
			return true
		}
	}
	return false
}

// MemoriesByAttribute returns memories tagged with attr.
func (m *Manager) MemoriesByAttribute(attr string) []types.Memory {
	var out []types.Memory
	for _, mem := range m.memories {
		for _, a := range mem.AssociatedAttributes {
			if strings.EqualFold(a, attr) {
				out = append(out, mem)
				break
			}
		}
	}
	return out
}

// Search returns memories whose content or attributes contain query.
func (m *Manager) Search(query string) []types.Memory {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []types.Memory
	for _, mem := range m.memories {
		if m.matches(mem, query, nil) {
			out = append(out, mem)
		}
	}
	return out
}

// Snapshot lists the most recently accessed memories.
func (m *Manager) Snapshot() string {
	if len(m.memories) == 0 {
		return "No significant memories."
	}
	recent := append([]types.Memory(nil), m.memories...)
	sort.SliceStable(recent, func(i, j int) bool { return recent[i].LastAccessed.After(recent[j].LastAccessed) })
	if len(recent) > snapshotSize {
		recent = recent[:snapshotSize]
	}
	lines := make([]string, 0, len(recent))
	for _, mem := range recent {
		lines = append(lines, fmt.Sprintf("%s (%d%% importance)", mem.Content, int(math.Round(mem.Importance*100))))
	}
	return strings.Join(lines, "\n")
}

// All returns a copy of the stored memories.
func (m *Manager) All() []types.Memory {
	return append([]types.Memory(nil), m.memories...)
}

// Load replaces the stored memories and applies the cap.
func (m *Manager) Load(memories []types.Memory) []types.Memory {
	m.memories = append([]types.Memory(nil), memories...)
	return m.pruneOldMemories()
}

func (m *Manager) sentimentOf(content string) string {
	lower := strings.ToLower(content)
	for _, w := range m.positive {
		if strings.Contains(lower, w) {
			return types.SentimentPositive
		}
	}
	for _, w := range m.negative {
		if strings.Contains(lower, w) {
			return types.SentimentNegative
		}
	}
	return types.SentimentNeutral
}

func (m *Manager) matches(mem types.Memory, query string, terms []string) bool {
	content := strings.ToLower(mem.Content)
	if strings.Contains(content, query) {
		return true
	}
	for _, a := range mem.AssociatedAttributes {
		a = strings.ToLower(a)
		if a == query {
			return true
		}
		for _, t := range terms {
			if a == t {
				return true
			}
		}
	}
	words := strings.FieldsFunc(content, isSeparator)
	for _, t := range terms {
		for _, w := range words {
			if w == t {
				return true
			}
		}
	}
	return false
}

// queryTerms returns the words of query long enough to be meaningful.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.FieldsFunc(query, isSeparator) {
		if len(w) > 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func isSeparator(r rune) bool {
	return !(r == '\'' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
