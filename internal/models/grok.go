package models

import (
	"context"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const grokBaseURL = "https://api.x.ai/v1"

// NewGrokModel creates a model.LLM for xAI Grok models such as "grok-4-fast".
func NewGrokModel(ctx context.Context, modelName string, cfg *genai.ClientConfig) (model.LLM, error) {
	return newOpenAICompatible(modelName, cfg, grokBaseURL, "grok-go")
}
