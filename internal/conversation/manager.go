// Package conversation orchestrates the per-conversation analyzers and persists their state.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/easeaico/companion/internal/dialogue"
	"github.com/easeaico/companion/internal/emotion"
	"github.com/easeaico/companion/internal/interest"
	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/media"
	"github.com/easeaico/companion/internal/memory"
	"github.com/easeaico/companion/internal/moderation"
	"github.com/easeaico/companion/internal/personality"
	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/topic"
	"github.com/easeaico/companion/internal/types"
)

// Manager owns one analyzer bundle per conversation. Calls for the same conversation
// are serialized; different conversations proceed in parallel.
type Manager struct {
	store     Store
	generator Generator
	lex       *lexicon.Lexicon
	cfg       Config
	detector  *emotion.Detector
	moderator *moderation.Moderator
	analyzer  *media.Analyzer
	builder   *prompt.Builder
	now       func() time.Time
	newID     func() string

	mu      sync.Mutex
	bundles map[string]*bundle
}

// bundle is the in-memory state of one conversation.
type bundle struct {
	mu           sync.Mutex
	id           string
	loaded       bool
	evicted      bool
	rng          *rand.Rand
	dialogue     *dialogue.Manager
	emotions     *emotion.Analyzer
	personality  *personality.Manager
	memories     *memory.Manager
	topics       *topic.Manager
	interests    *interest.Learner
	media        *media.Recommender
	state        State
	topicHistory []string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator replaces the uuid generator used for new turns and media.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager returns a Manager backed by store. generator may be nil when only
// ProcessMessage and the read operations are used.
func NewManager(store Store, generator Generator, embedder media.Embedder, lex *lexicon.Lexicon, cfg Config, opts ...Option) *Manager {
	if lex == nil {
		lex = lexicon.Default()
	}
	m := &Manager{
		store:     store,
		generator: generator,
		lex:       lex,
		cfg:       cfg,
		detector:  emotion.NewDetector(lex),
		moderator: moderation.NewModerator(cfg.Moderation),
		analyzer:  media.NewAnalyzer(embedder, lex),
		builder:   prompt.NewBuilder(cfg.Dialogue.MaxContextWindow),
		now:       time.Now,
		newID:     uuid.NewString,
		bundles:   make(map[string]*bundle),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Moderator returns the moderator shared by all conversations.
func (m *Manager) Moderator() *moderation.Moderator {
	return m.moderator
}

// acquire returns the hydrated bundle of id with its lock held.
func (m *Manager) acquire(ctx context.Context, id string) (*bundle, error) {
	if id == "" {
		return nil, types.NewValidationError("conversation id", "cannot be empty")
	}
	for {
		m.mu.Lock()
		b, ok := m.bundles[id]
		if !ok {
			b = &bundle{id: id}
			m.bundles[id] = b
		}
		m.mu.Unlock()

		b.mu.Lock()
		if b.evicted {
			b.mu.Unlock()
			continue
		}
		if !b.loaded {
			if err := m.hydrate(ctx, b); err != nil {
				m.evict(b)
				b.mu.Unlock()
				return nil, err
			}
			b.loaded = true
		}
		return b, nil
	}
}

// evict drops b from the registry so the next call reloads committed state.
// The caller holds b.mu.
func (m *Manager) evict(b *bundle) {
	b.evicted = true
	m.mu.Lock()
	if m.bundles[b.id] == b {
		delete(m.bundles, b.id)
	}
	m.mu.Unlock()
	slog.Warn("evicted conversation state", "conversation_id", b.id)
}

func (m *Manager) newRand() *rand.Rand {
	seed := m.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// hydrate builds the analyzers of b and loads their persisted state in parallel.
func (m *Manager) hydrate(ctx context.Context, b *bundle) error {
	now := m.now()
	b.rng = m.newRand()
	b.dialogue = dialogue.NewManager(m.cfg.Dialogue, m.lex)
	b.emotions = emotion.NewAnalyzer(m.detector, b.rng)
	b.personality = personality.NewManager(m.cfg.Personality, m.lex, b.id, now)
	b.memories = memory.NewManager(m.cfg.Memory, m.lex, b.id)
	b.topics = topic.NewManager(m.lex, b.id)
	b.interests = interest.NewLearner(m.lex, b.id)
	b.media = media.NewRecommender(m.analyzer)
	b.state = State{}
	b.topicHistory = nil

	var (
		turns        []types.Turn
		topics       []types.Topic
		transitions  []types.TopicTransition
		memories     []types.Memory
		attrs        []types.PersonalityAttribute
		state        *types.EmotionalState
		interests    []types.Interest
		preferences  []types.Preference
		interactions []types.MediaInteraction
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		turns, err = m.store.Turns.RecentTurns(gctx, b.id, m.cfg.Dialogue.MaxContextWindow)
		return types.WrapCollaborator("load turns", err)
	})
	g.Go(func() error {
		var err error
		if topics, err = m.store.Topics.Topics(gctx, b.id); err != nil {
			return types.WrapCollaborator("load topics", err)
		}
		transitions, err = m.store.Topics.Transitions(gctx, b.id, transitionHistoryLimit)
		return types.WrapCollaborator("load topic transitions", err)
	})
	g.Go(func() error {
		var err error
		memories, err = m.store.Memories.Memories(gctx, b.id)
		return types.WrapCollaborator("load memories", err)
	})
	g.Go(func() error {
		var err error
		if attrs, err = m.store.Personality.Attributes(gctx, b.id); err != nil {
			return types.WrapCollaborator("load personality", err)
		}
		state, err = m.store.Personality.EmotionalState(gctx, b.id)
		return types.WrapCollaborator("load emotional state", err)
	})
	g.Go(func() error {
		var err error
		if interests, err = m.store.Interests.Interests(gctx, b.id); err != nil {
			return types.WrapCollaborator("load interests", err)
		}
		preferences, err = m.store.Interests.Preferences(gctx, b.id)
		return types.WrapCollaborator("load preferences", err)
	})
	g.Go(func() error {
		var err error
		interactions, err = m.store.Media.Interactions(gctx, b.id, interactionHistoryLimit)
		return types.WrapCollaborator("load media interactions", err)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	b.dialogue.Restore(turns)
	b.personality.Restore(attrs, state)
	b.topics.Load(topics, transitions)
	b.interests.Load(interests, preferences)
	b.media.Load(interactions)
	if evicted := b.memories.Load(memories); len(evicted) > 0 {
		m.deleteMemories(ctx, b.id, evicted)
	}
	m.replay(b, b.dialogue.Turns())

	slog.Debug("hydrated conversation",
		"conversation_id", b.id,
		"turns", len(turns),
		"memories", len(memories),
		"topics", len(topics),
	)
	return nil
}

// replay rebuilds the emotion history, recent replies and orchestration state from turns.
func (m *Manager) replay(b *bundle, turns []types.Turn) {
	var readings []types.EmotionReading
	for i, t := range turns {
		if t.Deleted {
			continue
		}
		if t.Role == types.RoleAssistant {
			b.personality.AddResponse(t.Content)
			continue
		}
		reading := m.detector.Detect(t.Content)
		readings = append(readings, reading)
		m.advance(b, t.Content, reading, turns[:i])
	}
	b.emotions.Restore(readings)
}

// advance updates the orchestration state for an inbound message. prior are the
// turns that preceded it.
func (m *Manager) advance(b *bundle, content string, reading types.EmotionReading, prior []types.Turn) {
	current := extractTopics(m.lex.Conversation.Topics, content)
	var priorTopics []string
	seen := 0
	for i := len(prior) - 1; i >= 0 && seen < relevanceLookback; i-- {
		if prior[i].Deleted {
			continue
		}
		priorTopics = append(priorTopics, extractTopics(m.lex.Conversation.Topics, prior[i].Content)...)
		seen++
	}

	b.state.TurnCount++
	b.state.Emotion = reading
	b.state.ContextRelevance = contextRelevance(current, priorTopics)
	if len(current) > 0 && current[0] != b.state.CurrentTopic {
		b.state.CurrentTopic = current[0]
		b.topicHistory = append(b.topicHistory, current[0])
		if len(b.topicHistory) > topicHistoryLimit {
			b.topicHistory = b.topicHistory[len(b.topicHistory)-topicHistoryLimit:]
		}
	}
	b.state.LastResponseType = selectStrategy(b.state)
}

func (m *Manager) deleteMemories(ctx context.Context, conversationID string, evicted []types.Memory) {
	ids := make([]string, 0, len(evicted))
	for _, e := range evicted {
		ids = append(ids, e.ID)
	}
	if err := m.store.Memories.DeleteMemories(ctx, conversationID, ids); err != nil {
		slog.Error("failed to prune memories", "conversation_id", conversationID, "error", err.Error())
	}
}

// persistDecay writes decayed traits. Failures are logged and never block processing.
func (m *Manager) persistDecay(ctx context.Context, b *bundle) {
	if err := m.store.Personality.SaveAttributes(ctx, b.personality.Attributes()); err != nil {
		slog.Error("failed to persist trait decay", "conversation_id", b.id, "error", err.Error())
	}
}

// embed returns the vector of text, or nil when the embedder fails.
func (m *Manager) embed(ctx context.Context, conversationID, text string) []float32 {
	vec, err := m.analyzer.Embed(ctx, text)
	if err != nil {
		slog.Warn("failed to embed text", "conversation_id", conversationID, "error", err.Error())
		return nil
	}
	return vec
}

// logModeration records verdict in the moderation log.
func (m *Manager) logModeration(ctx context.Context, conversationID, content string, verdict types.ModerationVerdict) error {
	record := types.ModerationRecord{
		ConversationID: conversationID,
		Content:        content,
		Verdict:        verdict,
		CreatedAt:      m.now(),
	}
	if err := m.store.Moderation.LogModeration(ctx, record); err != nil {
		return types.WrapCollaborator("log moderation", fmt.Errorf("failed to log moderation: %w", err))
	}
	return nil
}
