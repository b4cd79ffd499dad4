package models

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/types"
)

type fakeLLM struct {
	responses []*model.LLMResponse
	err       error
	block     bool
	lastReq   *model.LLMRequest
}

func (f *fakeLLM) Name() string { return "fake-model" }

func (f *fakeLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	f.lastReq = req
	return func(yield func(*model.LLMResponse, error) bool) {
		if f.block {
			<-ctx.Done()
			yield(nil, ctx.Err())
			return
		}
		if f.err != nil {
			yield(nil, f.err)
			return
		}
		for _, r := range f.responses {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func textResponse(text string, partial bool) *model.LLMResponse {
	return &model.LLMResponse{Content: genai.NewContentFromText(text, genai.RoleModel), Partial: partial}
}

func TestGenerateBuildsRequest(t *testing.T) {
	llm := &fakeLLM{responses: []*model.LLMResponse{
		textResponse("I", true),
		textResponse(`  "I understand, that sounds hard."  `, false),
	}}
	g := NewGenerator(llm, GeneratorConfig{RPM: 60, MaxTokens: 256, Temperature: 0.7})

	reply, err := g.Generate(context.Background(), prompt.Request{
		System: "be kind",
		History: []types.Turn{
			{Role: types.RoleUser, Content: "hello"},
			{Role: types.RoleAssistant, Content: "hi there"},
			{Role: types.RoleUser, Content: "  "},
		},
		Message: "rough day",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply != "I understand, that sounds hard." {
		t.Fatalf("unexpected reply: %q", reply)
	}

	req := llm.lastReq
	if req.Model != "fake-model" {
		t.Fatalf("expected model name, got %s", req.Model)
	}
	if len(req.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(req.Contents))
	}
	if req.Contents[1].Role != string(genai.RoleModel) || req.Contents[2].Role != string(genai.RoleUser) {
		t.Fatalf("unexpected roles: %s, %s", req.Contents[1].Role, req.Contents[2].Role)
	}
	if contentText(req.Config.SystemInstruction) != "be kind" {
		t.Fatalf("expected system instruction")
	}
	if req.Config.MaxOutputTokens != 256 || req.Config.Temperature == nil || *req.Config.Temperature != float32(0.7) {
		t.Fatalf("unexpected generation config: %#v", req.Config)
	}
	if req.Config.TopK == nil || *req.Config.TopK != 40 {
		t.Fatalf("expected topK 40")
	}
}

func TestGenerateErrors(t *testing.T) {
	var nilGen *Generator
	if _, err := nilGen.Generate(context.Background(), prompt.Request{Message: "x"}); err == nil {
		t.Fatalf("expected not configured error")
	}

	boom := errors.New("boom")
	g := NewGenerator(&fakeLLM{err: boom}, GeneratorConfig{})
	if _, err := g.Generate(context.Background(), prompt.Request{Message: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}

	g = NewGenerator(&fakeLLM{responses: []*model.LLMResponse{textResponse("   ", false)}}, GeneratorConfig{})
	if _, err := g.Generate(context.Background(), prompt.Request{Message: "x"}); err == nil || !strings.Contains(err.Error(), "empty reply") {
		t.Fatalf("expected empty reply error, got %v", err)
	}
}

func TestGenerateTimeout(t *testing.T) {
	g := NewGenerator(&fakeLLM{block: true}, GeneratorConfig{Timeout: 10 * time.Millisecond})
	_, err := g.Generate(context.Background(), prompt.Request{Message: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCleanReply(t *testing.T) {
	cases := []struct{ in, want string }{
		{`"hello"`, "hello"},
		{"“hi there”", "hi there"},
		{`"a" and "b"`, `"a" and "b"`},
		{"  plain reply  ", "plain reply"},
		{`"`, `"`},
	}
	for _, c := range cases {
		if got := cleanReply(c.in); got != c.want {
			t.Fatalf("cleanReply(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestBuildOpenAIParams(t *testing.T) {
	temp := float32(0.5)
	req := &model.LLMRequest{
		Contents: []*genai.Content{
			genai.NewContentFromText("hello", genai.RoleUser),
			genai.NewContentFromText("hi", genai.RoleModel),
		},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText("be kind", genai.RoleUser),
			Temperature:       &temp,
			MaxOutputTokens:   100,
		},
	}
	params := buildOpenAIParams(req, "gpt-4o-mini")
	if params.Model != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %s", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil || params.Messages[2].OfAssistant == nil {
		t.Fatalf("unexpected message kinds: %#v", params.Messages)
	}
	if params.MaxTokens.Value != 100 {
		t.Fatalf("expected max tokens 100, got %d", params.MaxTokens.Value)
	}
}
