package models

import (
	"context"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"github.com/easeaico/companion/internal/config"
)

// NewLLM builds the model.LLM selected by cfg.LLMProvider.
func NewLLM(ctx context.Context, cfg config.Config) (model.LLM, error) {
	switch cfg.LLMProvider {
	case "gemini":
		llm, err := gemini.NewModel(ctx, cfg.LLMModel, &genai.ClientConfig{
			APIKey:  cfg.GoogleAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini model: %w", err)
		}
		return llm, nil
	case "openai":
		cc := &genai.ClientConfig{APIKey: cfg.OpenAIAPIKey}
		cc.HTTPOptions.BaseURL = cfg.OpenAIBaseURL
		llm, err := NewOpenAIModel(ctx, cfg.LLMModel, cc)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai model: %w", err)
		}
		return llm, nil
	case "grok":
		llm, err := NewGrokModel(ctx, cfg.LLMModel, &genai.ClientConfig{APIKey: cfg.XAIAPIKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create grok model: %w", err)
		}
		return llm, nil
	case "openrouter":
		llm, err := NewOpenRouterModel(ctx, cfg.LLMModel, &genai.ClientConfig{APIKey: cfg.OpenRouterKey})
		if err != nil {
			return nil, fmt.Errorf("failed to create openrouter model: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
