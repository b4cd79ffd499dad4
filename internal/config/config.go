// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime settings.
type Config struct {
	DatabaseURL    string
	LLMProvider    string
	LLMModel       string
	GoogleAPIKey   string
	OpenAIAPIKey   string
	XAIAPIKey      string
	OpenRouterKey  string
	OpenAIBaseURL  string
	EmbeddingModel string
	LexiconPath    string
	LogLevel       string

	MaxContextWindow      int
	ContextRetentionHours int
	TopicChangeThreshold  float64
	MaxTopicDistance      float64

	MaxMemories   int
	MinImportance float64

	TraitDecayRate float64
	TraitBoostRate float64

	MaxMessageLength   int
	ToxicityThreshold  float64
	ProfanityThreshold float64
	BannedWords        []string
	WarningWords       []string

	GenerationTimeout   time.Duration
	GenerationRPM       int
	MaxTokens           int
	Temperature         float64
	MaxRegenerations    int
	RecommendationLimit int
}

// Load reads env vars and applies defaults. Required settings are checked by Validate.
func Load() Config {
	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LLMProvider:    strings.ToLower(os.Getenv("LLM_PROVIDER")),
		LLMModel:       os.Getenv("LLM_MODEL"),
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		XAIAPIKey:      os.Getenv("XAI_API_KEY"),
		OpenRouterKey:  os.Getenv("OPENROUTER_API_KEY"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		LexiconPath:    os.Getenv("LEXICON_PATH"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
	}

	cfg.MaxContextWindow = getEnvInt("MAX_CONTEXT_WINDOW", 10)
	cfg.ContextRetentionHours = getEnvInt("CONTEXT_RETENTION_HOURS", 24)
	cfg.TopicChangeThreshold = getEnvFloat("TOPIC_CHANGE_THRESHOLD", 0.7)
	cfg.MaxTopicDistance = getEnvFloat("MAX_TOPIC_DISTANCE", 0.8)
	cfg.MaxMemories = getEnvInt("MAX_MEMORIES", 100)
	cfg.MinImportance = getEnvFloat("MIN_IMPORTANCE", 0.3)
	cfg.TraitDecayRate = getEnvFloat("TRAIT_DECAY_RATE", 0.1)
	cfg.TraitBoostRate = getEnvFloat("TRAIT_BOOST_RATE", 0.2)
	cfg.MaxMessageLength = getEnvInt("MAX_MESSAGE_LENGTH", 1000)
	cfg.ToxicityThreshold = getEnvFloat("TOXICITY_THRESHOLD", 0.8)
	cfg.ProfanityThreshold = getEnvFloat("PROFANITY_THRESHOLD", 0.7)
	cfg.BannedWords = getEnvList("BANNED_WORDS")
	cfg.WarningWords = getEnvList("WARNING_WORDS")
	cfg.GenerationTimeout = getEnvDuration("GENERATION_TIMEOUT", 30*time.Second)
	cfg.GenerationRPM = getEnvInt("GENERATION_RPM", 60)
	cfg.MaxTokens = getEnvInt("MAX_TOKENS", 1024)
	cfg.Temperature = getEnvFloat("TEMPERATURE", 0.9)
	cfg.MaxRegenerations = getEnvInt("MAX_REGENERATIONS", 2)
	cfg.RecommendationLimit = getEnvInt("RECOMMENDATION_LIMIT", 3)

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "gemini"
	}
	if cfg.LLMModel == "" {
		switch cfg.LLMProvider {
		case "grok":
			cfg.LLMModel = "grok-4-fast"
		case "openai":
			cfg.LLMModel = "gpt-4o-mini"
		case "openrouter":
			cfg.LLMModel = "openai/gpt-4o-mini"
		default:
			cfg.LLMModel = "gemini-2.5-flash"
		}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// Validate reports settings that prevent the companion from generating replies.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "gemini":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY environment variable is required for provider gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required for provider openai")
		}
	case "grok":
		if c.XAIAPIKey == "" {
			return fmt.Errorf("XAI_API_KEY environment variable is required for provider grok")
		}
	case "openrouter":
		if c.OpenRouterKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY environment variable is required for provider openrouter")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q (expected gemini, openai, grok or openrouter)", c.LLMProvider)
	}
	if c.MaxContextWindow <= 0 {
		return fmt.Errorf("MAX_CONTEXT_WINDOW must be positive")
	}
	if c.MaxMemories <= 0 {
		return fmt.Errorf("MAX_MEMORIES must be positive")
	}
	if c.EmbeddingModel != "" && c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY environment variable is required for EMBEDDING_MODEL")
	}
	if c.GenerationRPM <= 0 {
		return fmt.Errorf("GENERATION_RPM must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
