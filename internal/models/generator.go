package models

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/types"
)

const (
	defaultTopP = 0.95
	defaultTopK = 40
)

// GeneratorConfig bounds and tunes reply generation.
type GeneratorConfig struct {
	Timeout     time.Duration
	RPM         int
	MaxTokens   int
	Temperature float64
}

// Generator produces reply text from a prompt over a model.LLM. Calls are throttled
// to RPM requests per minute and each call is bounded by Timeout.
type Generator struct {
	llm     model.LLM
	cfg     GeneratorConfig
	limiter *rate.Limiter
}

// NewGenerator wraps llm.
func NewGenerator(llm model.LLM, cfg GeneratorConfig) *Generator {
	limit := rate.Inf
	burst := 1
	if cfg.RPM > 0 {
		limit = rate.Limit(float64(cfg.RPM) / 60)
		burst = cfg.RPM
	}
	return &Generator{
		llm:     llm,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Generate returns the model reply to req.
func (g *Generator) Generate(ctx context.Context, req prompt.Request) (string, error) {
	if g == nil || g.llm == nil {
		return "", fmt.Errorf("generator not configured")
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for generation slot: %w", err)
	}
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	llmReq := &model.LLMRequest{
		Model:    g.llm.Name(),
		Contents: buildContents(req),
		Config:   g.contentConfig(req.System),
	}

	var reply string
	for resp, err := range g.llm.GenerateContent(ctx, llmReq, false) {
		if err != nil {
			return "", fmt.Errorf("failed to generate reply: %w", err)
		}
		if resp == nil || resp.Partial {
			continue
		}
		reply = cleanReply(contentText(resp.Content))
		break
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if reply == "" {
		return "", fmt.Errorf("empty reply from model %s", g.llm.Name())
	}
	slog.Debug("reply generated", "model", g.llm.Name(), "length", len(reply))
	return reply, nil
}

func (g *Generator) contentConfig(system string) *genai.GenerateContentConfig {
	topP := float32(defaultTopP)
	topK := float32(defaultTopK)
	cfg := &genai.GenerateContentConfig{
		TopP: &topP,
		TopK: &topK,
	}
	if g.cfg.Temperature > 0 {
		temp := float32(g.cfg.Temperature)
		cfg.Temperature = &temp
	}
	if g.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return cfg
}

// buildContents converts history and the new message into model contents.
func buildContents(req prompt.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := genai.Role(genai.RoleUser)
		if t.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, role))
	}
	return append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))
}

// cleanReply trims whitespace and one pair of wrapping quotes from a model reply.
func cleanReply(text string) string {
	text = strings.TrimSpace(text)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}} {
		inner, ok := strings.CutPrefix(text, pair[0])
		if !ok {
			continue
		}
		inner, ok = strings.CutSuffix(inner, pair[1])
		if ok && !strings.Contains(inner, pair[0]) && !strings.Contains(inner, pair[1]) {
			return strings.TrimSpace(inner)
		}
	}
	return text
}
