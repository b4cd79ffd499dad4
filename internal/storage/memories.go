package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// memoryModel maps to the memories table.
type memoryModel struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	Content        string `gorm:"type:text"`
	Context        string `gorm:"type:text"`
	Sentiment      string
	// Importance is a 0-1 score, used for eviction.
	Importance float64
	Attributes json.RawMessage `gorm:"type:jsonb"`
	// Embedding stores the content fingerprint for similarity matching.
	Embedding    *pgvector.Vector `gorm:"type:vector(384)"`
	CreatedAt    time.Time
	LastAccessed time.Time
}

func (memoryModel) TableName() string {
	return "memories"
}

// memoryRepo accesses memory data.
type memoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a MemoryRepo.
func NewMemoryRepo(db *gorm.DB) conversation.MemoryRepo {
	return &memoryRepo{db: db}
}

func (r *memoryRepo) SaveMemory(ctx context.Context, mem types.Memory) error {
	attrs, err := marshalJSON(mem.AssociatedAttributes)
	if err != nil {
		return fmt.Errorf("failed to encode memory attributes: %w", err)
	}
	record := memoryModel{
		ID:             mem.ID,
		ConversationID: mem.ConversationID,
		Content:        mem.Content,
		Context:        mem.Context,
		Sentiment:      mem.Sentiment,
		Importance:     mem.Importance,
		Attributes:     attrs,
		Embedding:      toVector(mem.Embedding),
		CreatedAt:      mem.CreatedAt,
		LastAccessed:   mem.LastAccessed,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

func (r *memoryRepo) DeleteMemories(ctx context.Context, conversationID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND id IN ?", conversationID, ids).
		Delete(&memoryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memories: %w", err)
	}
	return nil
}

func (r *memoryRepo) Memories(ctx context.Context, conversationID string) ([]types.Memory, error) {
	var records []memoryModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	results := make([]types.Memory, 0, len(records))
	for _, record := range records {
		results = append(results, memoryFromModel(record))
	}
	return results, nil
}

// memoryFromModel converts database model to domain struct.
func memoryFromModel(model memoryModel) types.Memory {
	var attrs []string
	_ = unmarshalJSON(model.Attributes, &attrs)
	return types.Memory{
		ID:                   model.ID,
		ConversationID:       model.ConversationID,
		Content:              model.Content,
		Importance:           model.Importance,
		Context:              model.Context,
		Sentiment:            model.Sentiment,
		AssociatedAttributes: attrs,
		CreatedAt:            model.CreatedAt,
		LastAccessed:         model.LastAccessed,
		Embedding:            fromVector(model.Embedding),
	}
}
