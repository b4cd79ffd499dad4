package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// turnModel maps to the turns table.
type turnModel struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	ParentID       string
	Role           string
	Content        string `gorm:"type:text"`
	Deleted        bool
	CreatedAt      time.Time `gorm:"index"`
}

func (turnModel) TableName() string {
	return "turns"
}

// turnRepo accesses turn data.
type turnRepo struct {
	db *gorm.DB
}

// NewTurnRepo returns a TurnRepo.
func NewTurnRepo(db *gorm.DB) conversation.TurnRepo {
	return &turnRepo{db: db}
}

func (r *turnRepo) AppendTurn(ctx context.Context, turn types.Turn) error {
	record := turnModel{
		ID:             turn.ID,
		ConversationID: turn.ConversationID,
		ParentID:       turn.ParentID,
		Role:           turn.Role,
		Content:        turn.Content,
		Deleted:        turn.Deleted,
		CreatedAt:      turn.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

func (r *turnRepo) RecentTurns(ctx context.Context, conversationID string, limit int) ([]types.Turn, error) {
	var records []turnModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}

	results := make([]types.Turn, 0, len(records))
	for _, record := range records {
		results = append(results, turnFromModel(record))
	}

	// Oldest -> newest
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func turnFromModel(model turnModel) types.Turn {
	return types.Turn{
		ID:             model.ID,
		ConversationID: model.ConversationID,
		Content:        model.Content,
		Role:           model.Role,
		Timestamp:      model.CreatedAt,
		ParentID:       model.ParentID,
		Deleted:        model.Deleted,
	}
}
