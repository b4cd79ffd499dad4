package memory

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

var now = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(cfg Config) *Manager {
	m := NewManager(cfg, lexicon.Default(), "c1")
	seq := 0
	m.newID = func() string {
		seq++
		return fmt.Sprintf("m%d", seq)
	}
	return m
}

func TestCalculateImportanceRecencyFloor(t *testing.T) {
	m := newTestManager(DefaultConfig())
	got := m.CalculateImportance("ok", "")
	if got < 0.15 || got > 0.16 {
		t.Fatalf("expected importance near the recency floor, got %v", got)
	}
}

func TestCalculateImportanceClamped(t *testing.T) {
	m := newTestManager(DefaultConfig())
	text := strings.Repeat("I LOVE my family and I hate being sad! Remember this IMPORTANT thing tomorrow 42? ", 30)
	got := m.CalculateImportance(text, "important conversation")
	if got < 0 || got > 1 {
		t.Fatalf("importance out of range: %v", got)
	}
	if got < 0.9 {
		t.Fatalf("expected a dense message to score high, got %v", got)
	}
}

func TestAddMemoryBelowThresholdIsNoop(t *testing.T) {
	m := newTestManager(DefaultConfig())
	stored, evicted, err := m.AddMemory("ok", "conversation", nil, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored != nil || evicted != nil || len(m.All()) != 0 {
		t.Fatalf("expected nothing stored, got %#v", stored)
	}
	if got := m.RelevantMemories("ok", nil, 5, now); len(got) != 0 {
		t.Fatalf("expected no relevant memories, got %d", len(got))
	}
}

func TestAddMemoryRoundTrip(t *testing.T) {
	m := newTestManager(DefaultConfig())
	stored, _, err := m.AddMemory("I love my family, we are going hiking tomorrow", "conversation", []string{"family"}, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if stored == nil {
		t.Fatalf("expected memory to be stored")
	}
	if stored.Sentiment != types.SentimentNeutral {
		t.Fatalf("expected neutral sentiment tag, got %s", stored.Sentiment)
	}

	later := now.Add(time.Hour)
	got := m.RelevantMemories("hiking with family", nil, 5, later)
	if len(got) != 1 || got[0].ID != stored.ID {
		t.Fatalf("expected stored memory back, got %#v", got)
	}
	if !got[0].LastAccessed.Equal(later) {
		t.Fatalf("expected last accessed to be updated, got %v", got[0].LastAccessed)
	}
}

func TestAddMemoryRejectsEmpty(t *testing.T) {
	m := newTestManager(DefaultConfig())
	if _, _, err := m.AddMemory("  ", "", nil, now); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPruneKeepsHighestImportance(t *testing.T) {
	m := newTestManager(DefaultConfig())
	next := 0.0
	m.scoreFunc = func(string, string) float64 { return next }

	var evictedIDs []string
	for i := 0; i < 101; i++ {
		next = 0.3 + float64(i)*0.005
		_, evicted, err := m.AddMemory(fmt.Sprintf("memory %d", i), "conversation", nil, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, e := range evicted {
			evictedIDs = append(evictedIDs, e.ID)
		}
	}

	all := m.All()
	if len(all) != 100 {
		t.Fatalf("expected 100 memories, got %d", len(all))
	}
	if len(evictedIDs) != 1 || evictedIDs[0] != "m1" {
		t.Fatalf("expected the first memory to be evicted, got %v", evictedIDs)
	}
	for _, mem := range all {
		if mem.Content == "memory 0" {
			t.Fatalf("lowest importance memory should have been evicted")
		}
	}
}

func TestPruneTiesEvictOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemories = 2
	m := newTestManager(cfg)
	m.scoreFunc = func(string, string) float64 { return 0.5 }

	_, _, _ = m.AddMemory("first", "", nil, now)
	_, _, _ = m.AddMemory("second", "", nil, now.Add(time.Minute))
	_, evicted, _ := m.AddMemory("third", "", nil, now.Add(2*time.Minute))

	if len(evicted) != 1 || evicted[0].Content != "first" {
		t.Fatalf("expected oldest to be evicted, got %#v", evicted)
	}
}

func TestSentimentTags(t *testing.T) {
	m := newTestManager(DefaultConfig())
	if got := m.sentimentOf("such a good day"); got != types.SentimentPositive {
		t.Fatalf("expected positive, got %s", got)
	}
	if got := m.sentimentOf("feeling sad"); got != types.SentimentNegative {
		t.Fatalf("expected negative, got %s", got)
	}
}

func TestSnapshotAndAttributes(t *testing.T) {
	m := newTestManager(DefaultConfig())
	if got := m.Snapshot(); got != "No significant memories." {
		t.Fatalf("unexpected empty snapshot: %q", got)
	}
	m.scoreFunc = func(string, string) float64 { return 0.75 }
	_, _, _ = m.AddMemory("my sister visits", "", []string{"family"}, now)
	_, _, _ = m.AddMemory("new job", "", []string{"work"}, now.Add(time.Minute))

	if got := m.Snapshot(); !strings.HasPrefix(got, "new job (75% importance)") {
		t.Fatalf("unexpected snapshot: %q", got)
	}
	if got := m.MemoriesByAttribute("FAMILY"); len(got) != 1 || got[0].Content != "my sister visits" {
		t.Fatalf("unexpected attribute lookup: %#v", got)
	}
	if got := m.Search("job"); len(got) != 1 {
		t.Fatalf("expected one search hit, got %d", len(got))
	}
}

func TestRelevantMemoriesBySimilarity(t *testing.T) {
	m := newTestManager(DefaultConfig())
	m.scoreFunc = func(string, string) float64 { return 0.6 }
	stored, _, _ := m.AddMemory("beach trip", "", nil, now)
	if !m.SetEmbedding(stored.ID, []float32{1, 0, 0}) {
		t.Fatalf("expected embedding to attach to %s", stored.ID)
	}
	if m.SetEmbedding("missing", nil) {
		t.Fatalf("expected unknown id to report false")
	}

	got := m.RelevantMemories("ocean", []float32{0.9, 0.1, 0}, 3, now)
	if len(got) != 1 || got[0].ID != stored.ID {
		t.Fatalf("expected similarity match, got %#v", got)
	}
}
