package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// moderationLogModel maps to the moderation_logs table.
type moderationLogModel struct {
	ID              uint   `gorm:"primaryKey"`
	ConversationID  string `gorm:"index"`
	Content         string `gorm:"type:text"`
	FilteredContent string `gorm:"type:text"`
	IsAllowed       bool
	Score           float64
	Warnings        json.RawMessage `gorm:"type:jsonb"`
	Issues          json.RawMessage `gorm:"type:jsonb"`
	CreatedAt       time.Time
}

func (moderationLogModel) TableName() string {
	return "moderation_logs"
}

// moderationRepo records moderation verdicts.
type moderationRepo struct {
	db *gorm.DB
}

// NewModerationRepo returns a ModerationRepo.
func NewModerationRepo(db *gorm.DB) conversation.ModerationRepo {
	return &moderationRepo{db: db}
}

func (r *moderationRepo) LogModeration(ctx context.Context, rec types.ModerationRecord) error {
	warnings, err := marshalJSON(rec.Verdict.Warnings)
	if err != nil {
		return fmt.Errorf("failed to encode moderation warnings: %w", err)
	}
	issues, err := marshalJSON(rec.Verdict.DetectedIssues)
	if err != nil {
		return fmt.Errorf("failed to encode moderation issues: %w", err)
	}
	record := moderationLogModel{
		ConversationID:  rec.ConversationID,
		Content:         rec.Content,
		FilteredContent: rec.Verdict.FilteredContent,
		IsAllowed:       rec.Verdict.IsAllowed,
		Score:           rec.Verdict.ModerationScore,
		Warnings:        warnings,
		Issues:          issues,
		CreatedAt:       rec.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert moderation log: %w", err)
	}
	return nil
}
