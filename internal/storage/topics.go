package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// topicModel maps to the topics table.
type topicModel struct {
	ConversationID string `gorm:"primaryKey"`
	Name           string `gorm:"primaryKey"`
	LastDiscussed  time.Time
	Frequency      int
	Duration       float64
	Sentiment      float64
	// RelatedTopics/ContextHistory are stored as JSONB arrays.
	RelatedTopics  json.RawMessage `gorm:"type:jsonb"`
	ContextHistory json.RawMessage `gorm:"type:jsonb"`
}

func (topicModel) TableName() string {
	return "topics"
}

// topicTransitionModel maps to the append-only topic_transitions table.
type topicTransitionModel struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	FromTopic      string
	ToTopic        string
	Kind           string
	Context        string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (topicTransitionModel) TableName() string {
	return "topic_transitions"
}

// topicRepo accesses topic data.
type topicRepo struct {
	db *gorm.DB
}

// NewTopicRepo returns a TopicRepo.
func NewTopicRepo(db *gorm.DB) conversation.TopicRepo {
	return &topicRepo{db: db}
}

func (r *topicRepo) UpsertTopics(ctx context.Context, topics []types.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	records := make([]topicModel, 0, len(topics))
	for _, t := range topics {
		related, err := marshalJSON(t.RelatedTopics)
		if err != nil {
			return fmt.Errorf("failed to encode related topics: %w", err)
		}
		history, err := marshalJSON(t.ContextHistory)
		if err != nil {
			return fmt.Errorf("failed to encode topic context: %w", err)
		}
		records = append(records, topicModel{
			ConversationID: t.ConversationID,
			Name:           t.Name,
			LastDiscussed:  t.LastDiscussed,
			Frequency:      t.Frequency,
			Duration:       t.Duration,
			Sentiment:      t.Sentiment,
			RelatedTopics:  related,
			ContextHistory: history,
		})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error; err != nil {
		return fmt.Errorf("failed to upsert topics: %w", err)
	}
	return nil
}

func (r *topicRepo) Topics(ctx context.Context, conversationID string) ([]types.Topic, error) {
	var records []topicModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("last_discussed ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query topics: %w", err)
	}
	results := make([]types.Topic, 0, len(records))
	for _, record := range records {
		results = append(results, topicFromModel(record))
	}
	return results, nil
}

func (r *topicRepo) AppendTransition(ctx context.Context, transition types.TopicTransition) error {
	record := topicTransitionModel{
		ConversationID: transition.ConversationID,
		FromTopic:      transition.FromTopic,
		ToTopic:        transition.ToTopic,
		Kind:           transition.Kind,
		Context:        transition.Context,
		CreatedAt:      transition.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert topic transition: %w", err)
	}
	return nil
}

func (r *topicRepo) Transitions(ctx context.Context, conversationID string, limit int) ([]types.TopicTransition, error) {
	var records []topicTransitionModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query topic transitions: %w", err)
	}

	results := make([]types.TopicTransition, len(records))
	for i, record := range records {
		// Oldest -> newest
		results[len(records)-1-i] = types.TopicTransition{
			ConversationID: record.ConversationID,
			FromTopic:      record.FromTopic,
			ToTopic:        record.ToTopic,
			Timestamp:      record.CreatedAt,
			Kind:           record.Kind,
			Context:        record.Context,
		}
	}
	return results, nil
}

func topicFromModel(model topicModel) types.Topic {
	var related, history []string
	_ = unmarshalJSON(model.RelatedTopics, &related)
	_ = unmarshalJSON(model.ContextHistory, &history)
	return types.Topic{
		ConversationID: model.ConversationID,
		Name:           model.Name,
		LastDiscussed:  model.LastDiscussed,
		Frequency:      model.Frequency,
		Duration:       model.Duration,
		Sentiment:      model.Sentiment,
		RelatedTopics:  related,
		ContextHistory: history,
	}
}
