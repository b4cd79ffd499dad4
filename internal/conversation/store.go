package conversation

import (
	"context"

	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/types"
)

// TurnRepo persists conversation turns.
type TurnRepo interface {
	AppendTurn(ctx context.Context, turn types.Turn) error
	// RecentTurns returns up to limit turns, oldest first.
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]types.Turn, error)
}

// TopicRepo persists topic statistics and the transition log.
type TopicRepo interface {
	UpsertTopics(ctx context.Context, topics []types.Topic) error
	Topics(ctx context.Context, conversationID string) ([]types.Topic, error)
	AppendTransition(ctx context.Context, transition types.TopicTransition) error
	// Transitions returns up to limit transitions, oldest first.
	Transitions(ctx context.Context, conversationID string, limit int) ([]types.TopicTransition, error)
}

// MemoryRepo persists memories.
type MemoryRepo interface {
	SaveMemory(ctx context.Context, memory types.Memory) error
	DeleteMemories(ctx context.Context, conversationID string, ids []string) error
	Memories(ctx context.Context, conversationID string) ([]types.Memory, error)
}

// PersonalityRepo persists trait values and the emotional state.
type PersonalityRepo interface {
	SaveAttributes(ctx context.Context, attrs []types.PersonalityAttribute) error
	Attributes(ctx context.Context, conversationID string) ([]types.PersonalityAttribute, error)
	SaveEmotionalState(ctx context.Context, state types.EmotionalState) error
	// EmotionalState returns nil when no state was saved yet.
	EmotionalState(ctx context.Context, conversationID string) (*types.EmotionalState, error)
}

// InterestRepo persists learned interests and preferences.
type InterestRepo interface {
	UpsertInterests(ctx context.Context, interests []types.Interest) error
	Interests(ctx context.Context, conversationID string) ([]types.Interest, error)
	UpsertPreferences(ctx context.Context, prefs []types.Preference) error
	Preferences(ctx context.Context, conversationID string) ([]types.Preference, error)
}

// ModerationRepo records moderation decisions.
type ModerationRepo interface {
	LogModeration(ctx context.Context, record types.ModerationRecord) error
}

// MediaRepo persists shared media, fingerprints and interactions.
type MediaRepo interface {
	SaveMedia(ctx context.Context, item types.MediaItem) error
	Media(ctx context.Context, conversationID string) ([]types.MediaItem, error)
	SaveFingerprint(ctx context.Context, fp types.MediaFingerprint) error
	AppendInteraction(ctx context.Context, interaction types.MediaInteraction) error
	// Interactions returns up to limit interactions, newest first.
	Interactions(ctx context.Context, conversationID string, limit int) ([]types.MediaInteraction, error)
}

// Store groups the repositories the conversation manager reads and writes.
type Store struct {
	Turns       TurnRepo
	Topics      TopicRepo
	Memories    MemoryRepo
	Personality PersonalityRepo
	Interests   InterestRepo
	Moderation  ModerationRepo
	Media       MediaRepo
}

// Generator produces reply text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req prompt.Request) (string, error)
}
