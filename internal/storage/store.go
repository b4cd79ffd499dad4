// Package storage persists conversation state in PostgreSQL through gorm.
package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/easeaico/companion/internal/conversation"
)

// Store holds the database handle.
type Store struct {
	db *gorm.DB
}

// NewStore opens and pings the PostgreSQL database.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Repos returns the repositories backed by this database.
func (s *Store) Repos() conversation.Store {
	return conversation.Store{
		Turns:       NewTurnRepo(s.db),
		Topics:      NewTopicRepo(s.db),
		Memories:    NewMemoryRepo(s.db),
		Personality: NewPersonalityRepo(s.db),
		Interests:   NewInterestRepo(s.db),
		Moderation:  NewModerationRepo(s.db),
		Media:       NewMediaRepo(s.db),
	}
}

// AutoMigrate creates the pgvector extension and all application tables.
func (s *Store) AutoMigrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// Models lists the gorm models of every application table.
func Models() []any {
	return []any{
		&turnModel{},
		&topicModel{},
		&topicTransitionModel{},
		&memoryModel{},
		&personalityAttributeModel{},
		&emotionalStateModel{},
		&interestModel{},
		&preferenceModel{},
		&moderationLogModel{},
		&sharedMediaModel{},
		&mediaInteractionModel{},
	}
}

// TableNames lists the application tables in migration order.
func TableNames() []string {
	models := Models()
	names := make([]string, 0, len(models))
	for _, m := range models {
		if t, ok := m.(interface{ TableName() string }); ok {
			names = append(names, t.TableName())
		}
	}
	return names
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool. It is safe to call on a Store without a connection.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
