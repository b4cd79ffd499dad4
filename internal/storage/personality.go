package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// personalityAttributeModel maps to the personality_attributes table.
type personalityAttributeModel struct {
	ConversationID string `gorm:"primaryKey"`
	Name           string `gorm:"primaryKey"`
	Value          float64
	UpdatedAt      time.Time
}

func (personalityAttributeModel) TableName() string {
	return "personality_attributes"
}

// emotionalStateModel maps to the emotional_states table.
type emotionalStateModel struct {
	ConversationID  string `gorm:"primaryKey"`
	Mood            float64
	Energy          float64
	DominantEmotion string
	LastUpdate      time.Time
	LastDecay       time.Time
}

func (emotionalStateModel) TableName() string {
	return "emotional_states"
}

// personalityRepo accesses trait values and emotional state.
type personalityRepo struct {
	db *gorm.DB
}

// NewPersonalityRepo returns a PersonalityRepo.
func NewPersonalityRepo(db *gorm.DB) conversation.PersonalityRepo {
	return &personalityRepo{db: db}
}

func (r *personalityRepo) SaveAttributes(ctx context.Context, attrs []types.PersonalityAttribute) error {
	if len(attrs) == 0 {
		return nil
	}
	records := make([]personalityAttributeModel, 0, len(attrs))
	for _, a := range attrs {
		records = append(records, personalityAttributeModel{
			ConversationID: a.ConversationID,
			Name:           a.Name,
			Value:          a.Value,
		})
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&records).Error; err != nil {
		return fmt.Errorf("failed to upsert personality attributes: %w", err)
	}
	return nil
}

func (r *personalityRepo) Attributes(ctx context.Context, conversationID string) ([]types.PersonalityAttribute, error) {
	var records []personalityAttributeModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query personality attributes: %w", err)
	}
	results := make([]types.PersonalityAttribute, 0, len(records))
	for _, record := range records {
		results = append(results, types.PersonalityAttribute{
			ConversationID: record.ConversationID,
			Name:           record.Name,
			Value:          record.Value,
		})
	}
	return results, nil
}

func (r *personalityRepo) SaveEmotionalState(ctx context.Context, state types.EmotionalState) error {
	record := emotionalStateModel{
		ConversationID:  state.ConversationID,
		Mood:            state.Mood,
		Energy:          state.Energy,
		DominantEmotion: state.DominantEmotion,
		LastUpdate:      state.LastUpdate,
		LastDecay:       state.LastDecay,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert emotional state: %w", err)
	}
	return nil
}

func (r *personalityRepo) EmotionalState(ctx context.Context, conversationID string) (*types.EmotionalState, error) {
	var records []emotionalStateModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Limit(1).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query emotional state: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	record := records[0]
	return &types.EmotionalState{
		ConversationID:  record.ConversationID,
		Mood:            record.Mood,
		Energy:          record.Energy,
		DominantEmotion: record.DominantEmotion,
		LastUpdate:      record.LastUpdate,
		LastDecay:       record.LastDecay,
	}, nil
}
