package conversation

import (
	"github.com/easeaico/companion/internal/config"
	"github.com/easeaico/companion/internal/dialogue"
	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/memory"
	"github.com/easeaico/companion/internal/moderation"
	"github.com/easeaico/companion/internal/personality"
)

const (
	defaultMaxRegenerations    = 2
	defaultRecommendationLimit = 3
	defaultPromptMemories      = 5
	transitionHistoryLimit     = 50
	interactionHistoryLimit    = 100
)

// Config tunes the analyzers of every conversation.
type Config struct {
	Dialogue            dialogue.Config
	Memory              memory.Config
	Personality         personality.Config
	Moderation          moderation.Config
	MaxRegenerations    int
	RecommendationLimit int
	PromptMemories      int
	// Seed feeds the template RNG. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns the stock settings with the word lists of lex.
func DefaultConfig(lex *lexicon.Lexicon) Config {
	return Config{
		Dialogue:            dialogue.DefaultConfig(),
		Memory:              memory.DefaultConfig(),
		Personality:         personality.DefaultConfig(),
		Moderation:          moderation.DefaultConfig(lex),
		MaxRegenerations:    defaultMaxRegenerations,
		RecommendationLimit: defaultRecommendationLimit,
		PromptMemories:      defaultPromptMemories,
	}
}

// NewConfig maps environment settings onto the analyzer configuration.
func NewConfig(c config.Config, lex *lexicon.Lexicon) Config {
	cfg := DefaultConfig(lex)

	cfg.Dialogue.MaxContextWindow = c.MaxContextWindow
	cfg.Dialogue.ContextRetentionHours = c.ContextRetentionHours
	cfg.Dialogue.TopicChangeThreshold = c.TopicChangeThreshold
	cfg.Dialogue.MaxTopicDistance = c.MaxTopicDistance

	cfg.Memory.MaxMemories = c.MaxMemories
	cfg.Memory.MinImportance = c.MinImportance

	cfg.Personality.DecayRate = c.TraitDecayRate
	cfg.Personality.BoostRate = c.TraitBoostRate

	cfg.Moderation.MaxMessageLength = c.MaxMessageLength
	cfg.Moderation.ToxicityThreshold = c.ToxicityThreshold
	cfg.Moderation.ProfanityThreshold = c.ProfanityThreshold
	cfg.Moderation.BannedWords = append(cfg.Moderation.BannedWords, c.BannedWords...)
	cfg.Moderation.WarningWords = append(cfg.Moderation.WarningWords, c.WarningWords...)

	if c.MaxRegenerations >= 0 {
		cfg.MaxRegenerations = c.MaxRegenerations
	}
	if c.RecommendationLimit > 0 {
		cfg.RecommendationLimit = c.RecommendationLimit
	}
	return cfg
}
