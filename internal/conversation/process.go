package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/easeaico/companion/internal/dialogue"
	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/types"
)

const recommendationTurns = 5

// Result is the outcome of processing one inbound message.
type Result struct {
	ConversationID string
	TurnID         string
	Blocked        bool
	Verdict        types.ModerationVerdict
	Strategy       string
	Candidate      string
	Emotion        types.EmotionReading
	Mood           string
	MemoryID       string
	State          State
}

// Reply is a processed message together with the accepted reply.
type Reply struct {
	Result
	Text     string
	Turn     types.Turn
	Attempts int
	Fallback bool
	Media    []types.ScoredMedia
}

// Validation is the verdict on a candidate reply.
type Validation struct {
	IsConsistent bool
	Reason       string
	Gaps         []string
}

// pending holds the writes of one processed message until they are committed.
type pending struct {
	turns       []types.Turn
	topics      []types.Topic
	transition  *types.TopicTransition
	memories    []types.Memory
	evicted     []types.Memory
	attributes  bool
	interests   []types.Interest
	preferences []types.Preference
	queryVec    []float32
}

func (p *pending) addMemory(mem types.Memory) {
	for i := range p.memories {
		if p.memories[i].ID == mem.ID {
			p.memories[i] = mem
			return
		}
	}
	p.memories = append(p.memories, mem)
}

// ProcessMessage moderates turn, runs every analyzer over it, selects a reply
// strategy and persists the resulting state. A blocked message changes nothing.
func (m *Manager) ProcessMessage(ctx context.Context, turn types.Turn) (Result, error) {
	if err := validateTurn(turn); err != nil {
		return Result{}, err
	}
	b, err := m.acquire(ctx, turn.ConversationID)
	if err != nil {
		return Result{}, err
	}
	defer b.mu.Unlock()

	res, p, err := m.process(ctx, b, turn)
	if err != nil {
		m.evict(b)
		return Result{}, err
	}
	if res.Blocked {
		return res, nil
	}
	if err := m.commit(ctx, b, p); err != nil {
		m.evict(b)
		return Result{}, err
	}
	return res, nil
}

// Respond processes turn, asks the generator for a reply and validates it. Replies
// failing the personality check are regenerated with a correction up to
// MaxRegenerations times before falling back to an emotion template. State is only
// persisted once a reply is accepted.
func (m *Manager) Respond(ctx context.Context, turn types.Turn) (Reply, error) {
	if m.generator == nil {
		return Reply{}, fmt.Errorf("generator not configured")
	}
	if err := validateTurn(turn); err != nil {
		return Reply{}, err
	}
	b, err := m.acquire(ctx, turn.ConversationID)
	if err != nil {
		return Reply{}, err
	}
	defer b.mu.Unlock()

	res, p, err := m.process(ctx, b, turn)
	if err != nil {
		m.evict(b)
		return Reply{}, err
	}
	if res.Blocked {
		return Reply{Result: res}, nil
	}

	reply := Reply{Result: res}
	text, attempts, err := m.generate(ctx, b, res, p)
	if err != nil {
		m.evict(b)
		return Reply{}, err
	}
	reply.Attempts = attempts
	if text == "" {
		reply.Fallback = true
		text = b.emotions.SuggestResponse(res.Emotion)
		if text == "" {
			text = res.Candidate
		}
		slog.Warn("using fallback reply", "conversation_id", b.id, "attempts", attempts)
	}

	now := m.now()
	replyTurn := types.Turn{
		ID:             m.newID(),
		ConversationID: b.id,
		Content:        text,
		Role:           types.RoleAssistant,
		Timestamp:      now,
		ParentID:       res.TurnID,
	}
	if err := b.dialogue.AddMessage(replyTurn); err != nil {
		m.evict(b)
		return Reply{}, err
	}
	b.personality.AddResponse(text)
	p.turns = append(p.turns, replyTurn)
	if shouldRemember(m.lex, types.RoleAssistant, text) {
		m.remember(ctx, b, p, replyTurn, now)
	}

	if err := m.commit(ctx, b, p); err != nil {
		m.evict(b)
		return Reply{}, err
	}
	reply.Text = text
	reply.Turn = replyTurn

	reply.Media, err = m.suggestMedia(ctx, b, now)
	if err != nil {
		slog.Warn("failed to suggest media", "conversation_id", b.id, "error", err.Error())
	}
	return reply, nil
}

// ValidateResponse checks candidate against the personality and then against the
// coherence of the context window extended by candidate.
func (m *Manager) ValidateResponse(ctx context.Context, conversationID, candidate string) (Validation, error) {
	if strings.TrimSpace(candidate) == "" {
		return Validation{}, types.NewValidationError("candidate", "cannot be empty")
	}
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return Validation{}, err
	}
	defer b.mu.Unlock()
	return m.validate(b, candidate), nil
}

func (m *Manager) validate(b *bundle, candidate string) Validation {
	if c := b.personality.CheckResponseConsistency(candidate); !c.IsConsistent {
		return Validation{Reason: c.Reason}
	}

	scratch := dialogue.NewManager(m.cfg.Dialogue, m.lex)
	scratch.Restore(append(b.dialogue.Turns(), types.Turn{
		ID:             "candidate",
		ConversationID: b.id,
		Content:        candidate,
		Role:           types.RoleAssistant,
		Timestamp:      m.now(),
	}))
	continuity := scratch.AnalyzeContextContinuity()
	if !continuity.IsCoherent {
		return Validation{
			Reason: "Context coherence issues: " + strings.Join(continuity.Gaps, ", "),
			Gaps:   continuity.Gaps,
		}
	}
	return Validation{IsConsistent: true}
}

func validateTurn(turn types.Turn) error {
	if turn.ConversationID == "" {
		return types.NewValidationError("conversation id", "cannot be empty")
	}
	if strings.TrimSpace(turn.Content) == "" {
		return types.NewValidationError("content", "cannot be empty")
	}
	switch turn.Role {
	case "", types.RoleUser:
		return nil
	default:
		return types.NewValidationError("role", "inbound turns must come from the user")
	}
}

// process runs the pipeline over turn in memory. Nothing is written except the
// moderation log and decayed traits.
func (m *Manager) process(ctx context.Context, b *bundle, turn types.Turn) (Result, *pending, error) {
	now := m.now()
	if turn.ID == "" {
		turn.ID = m.newID()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	turn.Role = types.RoleUser

	verdict := m.moderator.Moderate(turn.Content)
	if err := m.logModeration(ctx, b.id, turn.Content, verdict); err != nil {
		return Result{}, nil, err
	}
	res := Result{ConversationID: b.id, TurnID: turn.ID, Verdict: verdict}
	if !verdict.IsAllowed {
		slog.Warn("message blocked",
			"conversation_id", b.id,
			"score", verdict.ModerationScore,
			"warnings", strings.Join(verdict.Warnings, "; "),
		)
		res.Blocked = true
		return res, nil, nil
	}
	if len(verdict.Warnings) > 0 {
		slog.Info("message allowed with warnings", "conversation_id", b.id, "warnings", strings.Join(verdict.Warnings, "; "))
	}

	if b.personality.DecayAttributes(now) {
		m.persistDecay(ctx, b)
	}
	if removed := b.dialogue.PruneOldContext(now); removed > 0 {
		slog.Debug("pruned context", "conversation_id", b.id, "removed", removed)
	}

	p := &pending{}
	prior := b.dialogue.Turns()
	if err := b.dialogue.AddMessage(turn); err != nil {
		return Result{}, nil, err
	}
	p.turns = append(p.turns, turn)

	content := turn.Content
	reading := b.emotions.Analyze(content)
	emotional := b.personality.UpdateEmotionalState(content, now)
	p.attributes = true

	update, err := b.topics.UpdateTopic(content, reading.Valence, now)
	if err != nil {
		return Result{}, nil, err
	}
	p.topics = update.Touched
	p.transition = update.Transition

	learned, err := b.interests.Learn(content, reading.Valence, now)
	if err != nil {
		return Result{}, nil, err
	}
	p.interests = learned.Interests
	p.preferences = learned.Preferences

	if shouldRemember(m.lex, turn.Role, content) {
		res.MemoryID = m.remember(ctx, b, p, turn, now)
	}

	m.advance(b, content, reading, prior)
	res.Strategy = b.state.LastResponseType
	res.Candidate = candidateFor(m.lex, b.rng, res.Strategy, b.state, previousTopic(b.topicHistory, b.state.CurrentTopic))
	res.Emotion = reading
	res.Mood = emotional.DominantEmotion
	res.State = b.state

	slog.Info("processed message",
		"conversation_id", b.id,
		"turn_id", turn.ID,
		"emotion", reading.Primary,
		"strategy", res.Strategy,
		"topic", b.state.CurrentTopic,
	)
	return res, p, nil
}

// remember offers turn to the memory manager and returns the id of the stored memory.
func (m *Manager) remember(ctx context.Context, b *bundle, p *pending, turn types.Turn, now time.Time) string {
	var recent []types.Turn
	for _, t := range b.dialogue.Recent(relevanceLookback + 1) {
		if t.ID != turn.ID {
			recent = append(recent, t)
		}
	}
	contextText := joinContents(recent)
	mem, evicted, err := b.memories.AddMemory(turn.Content, contextText, memoryAttributes(m.lex, turn.Content), now)
	if err != nil {
		slog.Warn("failed to score memory", "conversation_id", b.id, "error", err.Error())
		return ""
	}
	p.evicted = append(p.evicted, evicted...)
	if mem == nil {
		return ""
	}
	vec := m.embed(ctx, b.id, turn.Content)
	if turn.Role == types.RoleUser {
		p.queryVec = vec
	}
	if vec != nil && b.memories.SetEmbedding(mem.ID, vec) {
		mem.Embedding = vec
	}
	p.addMemory(*mem)
	return mem.ID
}

// generate asks the generator for a reply until one passes the personality check.
// It returns an empty text when every attempt failed validation.
func (m *Manager) generate(ctx context.Context, b *bundle, res Result, p *pending) (string, int, error) {
	now := m.now()
	last := p.turns[len(p.turns)-1]
	memories := b.memories.RelevantMemories(last.Content, p.queryVec, m.cfg.PromptMemories, now)
	for _, mem := range memories {
		p.addMemory(mem)
	}

	history := make([]types.Turn, 0)
	for _, t := range b.dialogue.RelevantContext(last.Content) {
		if t.ID != last.ID {
			history = append(history, t)
		}
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp.Before(history[j].Timestamp) })

	contextText := b.dialogue.Summary()
	if continuity := b.dialogue.AnalyzeContextContinuity(); len(continuity.Gaps) > 0 {
		contextText += "\nNote: " + strings.Join(continuity.Gaps, ", ")
	}

	in := prompt.Input{
		Personality: b.personality.Snapshot(),
		Mood:        res.Mood,
		Emotion:     res.Emotion,
		Topic:       b.state.CurrentTopic,
		ToneHints:   b.personality.ToneHints(),
		Memories:    memories,
		Context:     contextText,
		History:     history,
		Strategy:    res.Strategy,
		Candidate:   res.Candidate,
		UserMessage: last.Content,
	}

	attempts := 0
	for attempts <= m.cfg.MaxRegenerations {
		attempts++
		req, err := m.builder.Build(in)
		if err != nil {
			return "", attempts, err
		}
		text, err := m.generator.Generate(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", attempts, err
			}
			return "", attempts, types.WrapCollaborator("generate reply", fmt.Errorf("failed to generate reply: %w", err))
		}

		check := b.personality.CheckResponseConsistency(text)
		if check.IsConsistent {
			return text, attempts, nil
		}
		slog.Info("regenerating reply",
			"conversation_id", b.id,
			"attempt", attempts,
			"reason", check.Reason,
		)
		in.Correction = check.Reason
	}
	return "", attempts, nil
}

// commit persists the writes of p in parallel.
func (m *Manager) commit(ctx context.Context, b *bundle, p *pending) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for _, t := range p.turns {
			if err := m.store.Turns.AppendTurn(gctx, t); err != nil {
				return types.WrapCollaborator("save turn", fmt.Errorf("failed to save turn %s: %w", t.ID, err))
			}
		}
		return nil
	})
	g.Go(func() error {
		if len(p.topics) > 0 {
			if err := m.store.Topics.UpsertTopics(gctx, p.topics); err != nil {
				return types.WrapCollaborator("save topics", fmt.Errorf("failed to save topics: %w", err))
			}
		}
		if p.transition != nil {
			if err := m.store.Topics.AppendTransition(gctx, *p.transition); err != nil {
				return types.WrapCollaborator("save topic transition", fmt.Errorf("failed to save topic transition: %w", err))
			}
		}
		return nil
	})
	g.Go(func() error {
		for _, mem := range p.memories {
			if err := m.store.Memories.SaveMemory(gctx, mem); err != nil {
				return types.WrapCollaborator("save memory", fmt.Errorf("failed to save memory %s: %w", mem.ID, err))
			}
		}
		return nil
	})
	g.Go(func() error {
		if !p.attributes {
			return nil
		}
		if err := m.store.Personality.SaveAttributes(gctx, b.personality.Attributes()); err != nil {
			return types.WrapCollaborator("save personality", fmt.Errorf("failed to save personality: %w", err))
		}
		if err := m.store.Personality.SaveEmotionalState(gctx, b.personality.EmotionalState()); err != nil {
			return types.WrapCollaborator("save emotional state", fmt.Errorf("failed to save emotional state: %w", err))
		}
		return nil
	})
	g.Go(func() error {
		if len(p.interests) > 0 {
			if err := m.store.Interests.UpsertInterests(gctx, p.interests); err != nil {
				return types.WrapCollaborator("save interests", fmt.Errorf("failed to save interests: %w", err))
			}
		}
		if len(p.preferences) > 0 {
			if err := m.store.Interests.UpsertPreferences(gctx, p.preferences); err != nil {
				return types.WrapCollaborator("save preferences", fmt.Errorf("failed to save preferences: %w", err))
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if len(p.evicted) > 0 {
		m.deleteMemories(ctx, b.id, p.evicted)
	}
	return nil
}

// suggestMedia recommends stored media of the conversation for the latest turns.
func (m *Manager) suggestMedia(ctx context.Context, b *bundle, now time.Time) ([]types.ScoredMedia, error) {
	items, err := m.store.Media.Media(ctx, b.id)
	if err != nil {
		return nil, types.WrapCollaborator("load media", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return b.media.Recommend(ctx, items, b.dialogue.Recent(recommendationTurns), m.cfg.RecommendationLimit, now)
}

func joinContents(turns []types.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, " ")
}
