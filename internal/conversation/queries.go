package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/easeaico/companion/internal/interest"
	"github.com/easeaico/companion/internal/topic"
	"github.com/easeaico/companion/internal/types"
)

// Snapshot is a read model of one conversation.
type Snapshot struct {
	ContextSummary      string
	PersonalitySnapshot string
	MemorySnapshot      string
	State               State
}

// ConversationState summarizes the context window, the personality and the memories.
func (m *Manager) ConversationState(ctx context.Context, conversationID string) (Snapshot, error) {
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return Snapshot{}, err
	}
	defer b.mu.Unlock()
	return Snapshot{
		ContextSummary:      b.dialogue.Summary(),
		PersonalitySnapshot: b.personality.Snapshot(),
		MemorySnapshot:      b.memories.Snapshot(),
		State:               b.state,
	}, nil
}

// RelevantMemories returns up to limit memories matching query and persists their
// access time.
func (m *Manager) RelevantMemories(ctx context.Context, conversationID, query string, limit int) ([]types.Memory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewValidationError("query", "cannot be empty")
	}
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if limit <= 0 {
		limit = m.cfg.PromptMemories
	}
	vec := m.embed(ctx, conversationID, query)
	found := b.memories.RelevantMemories(query, vec, limit, m.now())

	g, gctx := errgroup.WithContext(ctx)
	for _, mem := range found {
		g.Go(func() error {
			if err := m.store.Memories.SaveMemory(gctx, mem); err != nil {
				return types.WrapCollaborator("save memory", fmt.Errorf("failed to save memory %s: %w", mem.ID, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.evict(b)
		return nil, err
	}
	return found, nil
}

// InterestSummary reports the strongest interests, recent preferences and suggestions.
func (m *Manager) InterestSummary(ctx context.Context, conversationID string) (interest.Summary, error) {
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return interest.Summary{}, err
	}
	defer b.mu.Unlock()
	return b.interests.Summary(), nil
}

// TopicSummary reports the current topic, its history and transition suggestions.
func (m *Manager) TopicSummary(ctx context.Context, conversationID string) (topic.Summary, error) {
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return topic.Summary{}, err
	}
	defer b.mu.Unlock()
	return b.topics.Summary(m.now()), nil
}

// SuggestNextAction hints at where the conversation should go next.
func (m *Manager) SuggestNextAction(ctx context.Context, conversationID string) (NextAction, error) {
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return NextAction{}, err
	}
	defer b.mu.Unlock()
	return suggestNextAction(b.emotions.Trend(), b.state, len(b.topicHistory)), nil
}

// ModerateContent screens text without processing it as a turn. The verdict is logged.
func (m *Manager) ModerateContent(ctx context.Context, conversationID, text string) (types.ModerationVerdict, error) {
	if conversationID == "" {
		return types.ModerationVerdict{}, types.NewValidationError("conversation id", "cannot be empty")
	}
	verdict := m.moderator.Moderate(text)
	if err := m.logModeration(ctx, conversationID, text, verdict); err != nil {
		return verdict, err
	}
	return verdict, nil
}

// Recommendations ranks media for the conversation. When items is nil the stored
// media of the conversation are ranked; when recent is nil the latest turns are used.
func (m *Manager) Recommendations(ctx context.Context, conversationID string, items []types.MediaItem, recent []types.Turn, limit int) ([]types.ScoredMedia, error) {
	b, err := m.acquire(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	defer b.mu.Unlock()

	if items == nil {
		if items, err = m.store.Media.Media(ctx, conversationID); err != nil {
			return nil, types.WrapCollaborator("load media", fmt.Errorf("failed to load media: %w", err))
		}
	}
	if recent == nil {
		recent = b.dialogue.Recent(recommendationTurns)
	}
	if limit <= 0 {
		limit = m.cfg.RecommendationLimit
	}
	return b.media.Recommend(ctx, items, recent, limit, m.now())
}

// RecordMediaInteraction adds a user action on a media item to the history.
func (m *Manager) RecordMediaInteraction(ctx context.Context, in types.MediaInteraction) error {
	b, err := m.acquire(ctx, in.ConversationID)
	if err != nil {
		return err
	}
	defer b.mu.Unlock()

	if in.Timestamp.IsZero() {
		in.Timestamp = m.now()
	}
	if err := b.media.RecordInteraction(in); err != nil {
		return err
	}
	if err := m.store.Media.AppendInteraction(ctx, in); err != nil {
		m.evict(b)
		return types.WrapCollaborator("save media interaction", fmt.Errorf("failed to save media interaction: %w", err))
	}
	return nil
}

// ShareMedia stores a media item and its fingerprint.
func (m *Manager) ShareMedia(ctx context.Context, item types.MediaItem) (types.MediaFingerprint, error) {
	if item.ConversationID == "" {
		return types.MediaFingerprint{}, types.NewValidationError("conversation id", "cannot be empty")
	}
	switch item.Kind {
	case types.MediaImage, types.MediaVoice:
	default:
		return types.MediaFingerprint{}, types.NewValidationError("media kind", "unsupported kind "+item.Kind)
	}
	if item.ID == "" {
		item.ID = m.newID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = m.now()
	}

	fp, err := m.analyzer.Analyze(ctx, item)
	if err != nil {
		return types.MediaFingerprint{}, err
	}
	if err := m.store.Media.SaveMedia(ctx, item); err != nil {
		return types.MediaFingerprint{}, types.WrapCollaborator("save media", fmt.Errorf("failed to save media: %w", err))
	}
	if err := m.store.Media.SaveFingerprint(ctx, fp); err != nil {
		return types.MediaFingerprint{}, types.WrapCollaborator("save fingerprint", fmt.Errorf("failed to save fingerprint: %w", err))
	}
	slog.Info("shared media",
		"conversation_id", item.ConversationID,
		"media_id", item.ID,
		"categories", strings.Join(fp.Categories, ","),
	)
	return fp, nil
}
