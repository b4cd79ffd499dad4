package media

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	// CacheTTL is how long a fingerprint stays valid.
	CacheTTL      = 24 * time.Hour
	cacheSize     = 4096
	contextTurns  = 5
	minTagLength  = 4
	voiceCategory = "communication"
)

var (
	nonWord   = regexp.MustCompile(`\W+`)
	voiceTags = []string{"voice", "audio", "message"}
)

// Analyzer computes and caches media fingerprints. It is safe for concurrent use.
type Analyzer struct {
	embedder   Embedder
	categories []lexicon.Group
	cache      *expirable.LRU[string, types.MediaFingerprint]
	now        func() time.Time
}

// NewAnalyzer returns an Analyzer using embedder for vectors.
func NewAnalyzer(embedder Embedder, lex *lexicon.Lexicon) *Analyzer {
	if embedder == nil {
		embedder = HashEmbedder{}
	}
	return &Analyzer{
		embedder:   embedder,
		categories: lex.MediaCategories,
		cache:      expirable.NewLRU[string, types.MediaFingerprint](cacheSize, nil, CacheTTL),
		now:        time.Now,
	}
}

// Analyze returns the fingerprint of item, computing it on a cache miss.
func (a *Analyzer) Analyze(ctx context.Context, item types.MediaItem) (types.MediaFingerprint, error) {
	if item.ID == "" {
		return types.MediaFingerprint{}, types.NewValidationError("media id", "cannot be empty")
	}
	now := a.now()
	if fp, ok := a.cache.Get(item.ID); ok && now.Sub(fp.ComputedAt) < CacheTTL {
		return fp, nil
	}

	var text string
	var tags, categories []string
	switch item.Kind {
	case types.MediaVoice:
		text = "Voice message " + item.ID
		tags = append([]string(nil), voiceTags...)
		categories = []string{voiceCategory}
	case types.MediaImage, "":
		text = item.Caption
		tags = Tags(text)
		categories = a.Categories(text)
	default:
		return types.MediaFingerprint{}, types.NewValidationError("media kind", fmt.Sprintf("unsupported kind %q", item.Kind))
	}

	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return types.MediaFingerprint{}, types.WrapCollaborator("embed media", err)
	}
	fp := types.MediaFingerprint{
		MediaID:    item.ID,
		Vector:     vec,
		Tags:       tags,
		Categories: categories,
		ComputedAt: now,
	}
	a.cache.Add(item.ID, fp)
	return fp, nil
}

// Embed exposes the underlying embedder.
func (a *Analyzer) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.embedder.Embed(ctx, text)
	if err != nil {
		return nil, types.WrapCollaborator("embed text", err)
	}
	return vec, nil
}

// ContextProfile is the fingerprint of the latest turns of a conversation.
type ContextProfile struct {
	Vector     []float32
	Tags       []string
	Categories []string
}

// Context builds a profile from the last few turns.
func (a *Analyzer) Context(ctx context.Context, turns []types.Turn) (ContextProfile, error) {
	if len(turns) > contextTurns {
		turns = turns[len(turns)-contextTurns:]
	}
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Content)
	}
	text := strings.Join(parts, " ")
	vec, err := a.Embed(ctx, text)
	if err != nil {
		return ContextProfile{}, err
	}
	return ContextProfile{Vector: vec, Tags: Tags(text), Categories: a.Categories(text)}, nil
}

// Categories returns the media categories whose keywords appear in text.
func (a *Analyzer) Categories(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, c := range a.categories {
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

// Tags returns the distinct lowercase words of text longer than three characters.
func Tags(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range nonWord.Split(strings.ToLower(text), -1) {
		if len(w) < minTagLength || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
