// Package cli implements the companion CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/easeaico/companion/internal/config"
	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/media"
	"github.com/easeaico/companion/internal/models"
	"github.com/easeaico/companion/internal/storage"
	"github.com/easeaico/companion/internal/storage/inmem"
)

var (
	conversationID string
	formatFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "companion",
	Short: "Conversation pipeline for an AI companion",
	Long:  "Moderates, analyzes and remembers conversation turns, then generates in-character replies. State lives in PostgreSQL when DATABASE_URL is set and in memory otherwise.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&conversationID, "conversation", "c", "default", "Conversation id")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// app is the wired pipeline of one CLI invocation.
type app struct {
	cfg     config.Config
	manager *conversation.Manager
	close   func()
}

// openApp loads configuration and wires the store, embedder and manager. The generator
// is only built when withGenerator is set so offline commands need no API key.
func openApp(ctx context.Context, withGenerator bool) (*app, error) {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, err
	}

	closeFn := func() {}
	var repos conversation.Store
	if cfg.DatabaseURL != "" {
		store, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		repos = store.Repos()
		closeFn = store.Close
	} else {
		slog.Warn("DATABASE_URL not set, conversation state is kept in memory")
		repos = inmem.New().Repos()
	}

	var embedder media.Embedder = media.HashEmbedder{}
	if cfg.EmbeddingModel != "" {
		genaiEmbedder, err := media.NewGenAIEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
		if err != nil {
			closeFn()
			return nil, err
		}
		embedder = genaiEmbedder
	}

	var generator conversation.Generator
	if withGenerator {
		if err := cfg.Validate(); err != nil {
			closeFn()
			return nil, err
		}
		llm, err := models.NewLLM(ctx, cfg)
		if err != nil {
			closeFn()
			return nil, err
		}
		generator = models.NewGenerator(llm, models.GeneratorConfig{
			Timeout:     cfg.GenerationTimeout,
			RPM:         cfg.GenerationRPM,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	}

	manager := conversation.NewManager(repos, generator, embedder, lex, conversation.NewConfig(cfg, lex))
	return &app{cfg: cfg, manager: manager, close: closeFn}, nil
}

// printResult writes v as indented JSON, or calls text when --format=text.
func printResult(v any, text func()) {
	if formatFlag == "text" {
		text()
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
