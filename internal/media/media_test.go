package media

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return make([]float32, Dimensions), nil
}

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalyzer(e Embedder) *Analyzer {
	a := NewAnalyzer(e, lexicon.Default())
	a.now = func() time.Time { return now }
	return a
}

func TestHashFingerprintDeterministic(t *testing.T) {
	a := HashFingerprint("sunset at the beach")
	b := HashFingerprint("sunset at the beach")
	c := HashFingerprint("sunset at the lake")
	if len(a) != Dimensions {
		t.Fatalf("expected %d dimensions, got %d", Dimensions, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors at %d", i)
		}
		if a[i] < -1 || a[i] >= 1 {
			t.Fatalf("value out of range at %d: %v", i, a[i])
		}
	}
	if math.Abs(Cosine(a, b)-1) > 1e-6 {
		t.Fatalf("expected self similarity 1, got %v", Cosine(a, b))
	}
	if Cosine(a, c) == 1 {
		t.Fatalf("expected different texts to differ")
	}
}

func TestCosineZeroNorm(t *testing.T) {
	if got := Cosine(make([]float32, 3), []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := Cosine([]float32{1}, []float32{1, 2}); got != 0 {
		t.Fatalf("expected 0 for length mismatch, got %v", got)
	}
}

func TestAnalyzeImageAndCache(t *testing.T) {
	e := &countingEmbedder{}
	a := newTestAnalyzer(e)
	item := types.MediaItem{ID: "img1", Kind: types.MediaImage, Caption: "Sunset at the beach with my dog"}

	fp, err := a.Analyze(context.Background(), item)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fp.Categories) != 2 || fp.Categories[0] != "nature" || fp.Categories[1] != "pets" {
		t.Fatalf("unexpected categories: %v", fp.Categories)
	}
	wantTags := []string{"sunset", "beach", "with"}
	if len(fp.Tags) != len(wantTags) {
		t.Fatalf("expected tags %v, got %v", wantTags, fp.Tags)
	}
	for i := range wantTags {
		if fp.Tags[i] != wantTags[i] {
			t.Fatalf("expected tags %v, got %v", wantTags, fp.Tags)
		}
	}

	if _, err := a.Analyze(context.Background(), item); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.calls != 1 {
		t.Fatalf("expected cached fingerprint, embedder called %d times", e.calls)
	}

	a.now = func() time.Time { return now.Add(25 * time.Hour) }
	if _, err := a.Analyze(context.Background(), item); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if e.calls != 2 {
		t.Fatalf("expected recompute after ttl, embedder called %d times", e.calls)
	}
}

func TestAnalyzeVoice(t *testing.T) {
	a := newTestAnalyzer(HashEmbedder{})
	fp, err := a.Analyze(context.Background(), types.MediaItem{ID: "v1", Kind: types.MediaVoice})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(fp.Categories) != 1 || fp.Categories[0] != "communication" || len(fp.Tags) != 3 {
		t.Fatalf("unexpected voice fingerprint: %#v", fp)
	}
	want := HashFingerprint("Voice message v1")
	if fp.Vector[0] != want[0] {
		t.Fatalf("expected transcript fingerprint")
	}
}

func TestAnalyzeEmbedderFailureIsCollaboratorError(t *testing.T) {
	a := newTestAnalyzer(&countingEmbedder{err: errors.New("quota")})
	_, err := a.Analyze(context.Background(), types.MediaItem{ID: "x", Caption: "tree"})
	if !types.IsCollaborator(err) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
}

func TestRecommendRanksByInteractionAndContext(t *testing.T) {
	a := newTestAnalyzer(&countingEmbedder{})
	r := NewRecommender(a)
	_ = r.RecordInteraction(types.MediaInteraction{MediaID: "shared", Kind: types.InteractionShare, Timestamp: now})
	_ = r.RecordInteraction(types.MediaInteraction{MediaID: "deleted", Kind: types.InteractionDelete, Timestamp: now})

	items := []types.MediaItem{
		{ID: "deleted", Caption: "computer screen"},
		{ID: "plain", Caption: "random thing"},
		{ID: "beach", Caption: "sunset beach"},
		{ID: "shared", Caption: "office desk"},
	}
	recent := []types.Turn{{Content: "we watched the sunset on the beach"}}

	got, err := r.Recommend(context.Background(), items, recent, 3, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	// shared: 3; beach: nature 0.5 + sunset 0.3 + beach 0.3 = 1.1
	if got[0].Item.ID != "shared" || math.Abs(got[0].Score-3) > 1e-9 {
		t.Fatalf("expected shared first with score 3, got %#v", got[0])
	}
	if got[1].Item.ID != "beach" || math.Abs(got[1].Score-1.1) > 1e-9 {
		t.Fatalf("expected beach second with score 1.1, got %#v", got[1])
	}
	if got[2].Item.ID != "plain" {
		t.Fatalf("expected plain third, got %#v", got[2])
	}
}

func TestRecommendAppliesDecay(t *testing.T) {
	r := NewRecommender(newTestAnalyzer(&countingEmbedder{}))
	_ = r.RecordInteraction(types.MediaInteraction{MediaID: "m", Kind: types.InteractionView, Timestamp: now.Add(-48 * time.Hour)})

	got, err := r.Recommend(context.Background(), []types.MediaItem{{ID: "m", Caption: "x"}}, nil, 1, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := math.Exp(-0.2) * math.Exp(-0.2)
	if math.Abs(got[0].Score-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got[0].Score)
	}
}

func TestRecommendSkipsDecayWithoutPositiveInteraction(t *testing.T) {
	r := NewRecommender(newTestAnalyzer(&countingEmbedder{}))
	at := now.Add(-48 * time.Hour)
	_ = r.RecordInteraction(types.MediaInteraction{MediaID: "beach", Kind: types.InteractionView, Timestamp: at})
	_ = r.RecordInteraction(types.MediaInteraction{MediaID: "beach", Kind: types.InteractionDelete, Timestamp: at})
	recent := []types.Turn{{Content: "we watched the sunset on the beach"}}

	got, err := r.Recommend(context.Background(), []types.MediaItem{{ID: "beach", Caption: "sunset beach"}}, recent, 1, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// the context bonus outweighs the net negative interaction, recency stays at 1
	want := 1.1 - math.Exp(-0.2)
	if math.Abs(got[0].Score-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got[0].Score)
	}
}

func TestRecordInteractionBounded(t *testing.T) {
	r := NewRecommender(newTestAnalyzer(HashEmbedder{}))
	for i := 0; i < 120; i++ {
		_ = r.RecordInteraction(types.MediaInteraction{MediaID: "m", Kind: types.InteractionView, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}
	h := r.History()
	if len(h) != interactionsLimit {
		t.Fatalf("expected %d events, got %d", interactionsLimit, len(h))
	}
	if !h[0].Timestamp.Equal(now.Add(119 * time.Second)) {
		t.Fatalf("expected newest first")
	}
	if err := r.RecordInteraction(types.MediaInteraction{MediaID: "m", Kind: "like"}); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
