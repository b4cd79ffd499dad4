// Package media fingerprints shared media and recommends items for the current conversation.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"unicode/utf16"

	"google.golang.org/genai"
)

// Dimensions is the fingerprint length.
const Dimensions = 384

const hashSeed uint32 = 0x811c9dc5

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HashEmbedder derives a deterministic vector from a string hash. It stands in for
// a learned embedding and needs no network access.
type HashEmbedder struct{}

// Embed returns the hash fingerprint of text.
func (HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return HashFingerprint(text), nil
}

// HashFingerprint folds text into a 32-bit hash and spreads it with a sine transform.
func HashFingerprint(text string) []float32 {
	h := hashSeed
	for _, unit := range utf16.Encode([]rune(text)) {
		h = h*31 + uint32(unit)
	}
	seed := float64(int32(h))
	vec := make([]float32, Dimensions)
	for i := range vec {
		v := math.Sin(seed * float64(i+1))
		vec[i] = float32((v-math.Floor(v))*2 - 1)
	}
	return vec
}

// GenAIEmbedder calls a Gemini embedding model.
type GenAIEmbedder struct {
	client *genai.Client
	model  string
}

// NewGenAIEmbedder creates an embedder backed by the Gemini API.
func NewGenAIEmbedder(ctx context.Context, apiKey, modelName string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required for embeddings")
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: modelName}, nil
}

// Embed returns the model embedding of text truncated to Dimensions.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.client == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	if text == "" {
		return make([]float32, Dimensions), nil
	}

	dims := int32(Dimensions)
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		TaskType:             "SEMANTIC_SIMILARITY",
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("empty embedding response")
	}
	values := resp.Embeddings[0].Values
	if len(values) == Dimensions {
		return values, nil
	}
	if len(values) > Dimensions {
		slog.Warn("embedding dimensions exceed target, truncating", "actual", len(values), "target", Dimensions, "model", e.model)
		return values[:Dimensions], nil
	}
	return nil, fmt.Errorf("embedding dimensions mismatch: got %d want %d", len(values), Dimensions)
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm
// or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
