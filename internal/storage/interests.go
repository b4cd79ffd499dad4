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

// interestModel maps to the interests table, keyed on (conversation_id, topic).
type interestModel struct {
	ConversationID string `gorm:"primaryKey"`
	Topic          string `gorm:"primaryKey"`
	Category       string
	Sentiment      float64
	Frequency      int
	Confidence     float64
	RelatedTopics  json.RawMessage `gorm:"type:jsonb"`
	LastMentioned  time.Time
}

func (interestModel) TableName() string {
	return "interests"
}

// preferenceModel maps to the preferences table, keyed on (conversation_id, category, value).
type preferenceModel struct {
	ConversationID string `gorm:"primaryKey"`
	Category       string `gorm:"primaryKey"`
	Value          string `gorm:"primaryKey"`
	Strength       float64
	Context        json.RawMessage `gorm:"type:jsonb"`
	LastUpdated    time.Time
}

func (preferenceModel) TableName() string {
	return "preferences"
}

// interestRepo accesses interest and preference data.
type interestRepo struct {
	db *gorm.DB
}

// NewInterestRepo returns an InterestRepo.
func NewInterestRepo(db *gorm.DB) conversation.InterestRepo {
	return &interestRepo{db: db}
}

func (r *interestRepo) UpsertInterests(ctx context.Context, interests []types.Interest) error {
	if len(interests) == 0 {
		return nil
	}
	records := make([]interestModel, 0, len(interests))
	for _, in := range interests {
		related, err := marshalJSON(in.RelatedTopics)
		if err != nil {
			return fmt.Errorf("failed to encode related topics: %w", err)
		}
		records = append(records, interestModel{
			ConversationID: in.ConversationID,
			Topic:          in.Topic,
			Category:       in.Category,
			Sentiment:      in.Sentiment,
			Frequency:      in.Frequency,
			Confidence:     in.Confidence,
			RelatedTopics:  related,
			LastMentioned:  in.LastMentioned,
		})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error; err != nil {
		return fmt.Errorf("failed to upsert interests: %w", err)
	}
	return nil
}

func (r *interestRepo) Interests(ctx context.Context, conversationID string) ([]types.Interest, error) {
	var records []interestModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("last_mentioned ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query interests: %w", err)
	}
	results := make([]types.Interest, 0, len(records))
	for _, record := range records {
		var related []string
		_ = unmarshalJSON(record.RelatedTopics, &related)
		results = append(results, types.Interest{
			ConversationID: record.ConversationID,
			Category:       record.Category,
			Topic:          record.Topic,
			Sentiment:      record.Sentiment,
			Frequency:      record.Frequency,
			Confidence:     record.Confidence,
			RelatedTopics:  related,
			LastMentioned:  record.LastMentioned,
		})
	}
	return results, nil
}

func (r *interestRepo) UpsertPreferences(ctx context.Context, prefs []types.Preference) error {
	if len(prefs) == 0 {
		return nil
	}
	records := make([]preferenceModel, 0, len(prefs))
	for _, p := range prefs {
		contexts, err := marshalJSON(p.Context)
		if err != nil {
			return fmt.Errorf("failed to encode preference context: %w", err)
		}
		records = append(records, preferenceModel{
			ConversationID: p.ConversationID,
			Category:       p.Category,
			Value:          p.Value,
			Strength:       p.Strength,
			Context:        contexts,
			LastUpdated:    p.LastUpdated,
		})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error; err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

func (r *interestRepo) Preferences(ctx context.Context, conversationID string) ([]types.Preference, error) {
	var records []preferenceModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("last_updated ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}
	results := make([]types.Preference, 0, len(records))
	for _, record := range records {
		var contexts []string
		_ = unmarshalJSON(record.Context, &contexts)
		results = append(results, types.Preference{
			ConversationID: record.ConversationID,
			Category:       record.Category,
			Value:          record.Value,
			Strength:       record.Strength,
			Context:        contexts,
			LastUpdated:    record.LastUpdated,
		})
	}
	return results, nil
}
