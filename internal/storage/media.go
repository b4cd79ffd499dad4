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

// sharedMediaModel maps to the shared_media table.
type sharedMediaModel struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	Kind           string
	Caption        string `gorm:"type:text"`
	CreatedAt      time.Time
	// Fingerprint columns are filled by SaveFingerprint.
	Fingerprint     *pgvector.Vector `gorm:"type:vector(384)"`
	Tags            json.RawMessage  `gorm:"type:jsonb"`
	Categories      json.RawMessage  `gorm:"type:jsonb"`
	FingerprintedAt *time.Time
}

func (sharedMediaModel) TableName() string {
	return "shared_media"
}

// mediaInteractionModel maps to the media_interactions table.
type mediaInteractionModel struct {
	ID             uint   `gorm:"primaryKey"`
	MediaID        string `gorm:"index"`
	ConversationID string `gorm:"index"`
	Kind           string
	CreatedAt      time.Time
}

func (mediaInteractionModel) TableName() string {
	return "media_interactions"
}

// mediaRepo accesses shared media data.
type mediaRepo struct {
	db *gorm.DB
}

// NewMediaRepo returns a MediaRepo.
func NewMediaRepo(db *gorm.DB) conversation.MediaRepo {
	return &mediaRepo{db: db}
}

func (r *mediaRepo) SaveMedia(ctx context.Context, item types.MediaItem) error {
	record := sharedMediaModel{
		ID:             item.ID,
		ConversationID: item.ConversationID,
		Kind:           item.Kind,
		Caption:        item.Caption,
		CreatedAt:      item.CreatedAt,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "caption"}),
		}).
		Create(&record).Error; err != nil {
		return fmt.Errorf("failed to upsert media: %w", err)
	}
	return nil
}

func (r *mediaRepo) Media(ctx context.Context, conversationID string) ([]types.MediaItem, error) {
	var records []sharedMediaModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query media: %w", err)
	}
	results := make([]types.MediaItem, 0, len(records))
	for _, record := range records {
		results = append(results, types.MediaItem{
			ID:             record.ID,
			ConversationID: record.ConversationID,
			Kind:           record.Kind,
			Caption:        record.Caption,
			CreatedAt:      record.CreatedAt,
		})
	}
	return results, nil
}

func (r *mediaRepo) SaveFingerprint(ctx context.Context, fp types.MediaFingerprint) error {
	tags, err := marshalJSON(fp.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode media tags: %w", err)
	}
	categories, err := marshalJSON(fp.Categories)
	if err != nil {
		return fmt.Errorf("failed to encode media categories: %w", err)
	}
	result := r.db.WithContext(ctx).
		Model(&sharedMediaModel{}).
		Where("id = ?", fp.MediaID).
		Updates(map[string]any{
			"fingerprint":      toVector(fp.Vector),
			"tags":             tags,
			"categories":       categories,
			"fingerprinted_at": fp.ComputedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update media fingerprint: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to update media fingerprint: media %s not found", fp.MediaID)
	}
	return nil
}

func (r *mediaRepo) AppendInteraction(ctx context.Context, in types.MediaInteraction) error {
	record := mediaInteractionModel{
		MediaID:        in.MediaID,
		ConversationID: in.ConversationID,
		Kind:           in.Kind,
		CreatedAt:      in.Timestamp,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert media interaction: %w", err)
	}
	return nil
}

func (r *mediaRepo) Interactions(ctx context.Context, conversationID string, limit int) ([]types.MediaInteraction, error) {
	var records []mediaInteractionModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query media interactions: %w", err)
	}
	results := make([]types.MediaInteraction, 0, len(records))
	for _, record := range records {
		results = append(results, types.MediaInteraction{
			MediaID:        record.MediaID,
			ConversationID: record.ConversationID,
			Kind:           record.Kind,
			Timestamp:      record.CreatedAt,
		})
	}
	return results, nil
}
