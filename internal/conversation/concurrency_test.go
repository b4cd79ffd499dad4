package conversation_test

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/easeaico/companion/internal/conversation"
)

var concurrentMessages = []string{
	"I love music and I enjoy music festivals",
	"My family is visiting this weekend",
	"I feel so sad and hurt today",
	memorableMsg,
	"Let's talk about travel",
	"I had an amazing day, thank you so much!",
	"I worry about my job",
	"By the way, I enjoy painting",
}

type runOutcome struct {
	turns     []string
	contents  []string
	turnCount int
	topics    int
	memories  int
	moderated int
}

func outcomeOf(t *testing.T, h *harness) runOutcome {
	t.Helper()
	ctx := context.Background()
	snap, err := h.mgr.ConversationState(ctx, convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	topics, _ := h.store.Topics(ctx, convID)
	memories, _ := h.store.Memories(ctx, convID)
	out := runOutcome{
		turnCount: snap.State.TurnCount,
		topics:    len(topics),
		memories:  len(memories),
		moderated: len(h.store.ModerationLog()),
	}
	for _, turn := range storedTurns(t, h.store) {
		out.turns = append(out.turns, turn.ID)
		out.contents = append(out.contents, turn.Content)
	}
	return out
}

func TestProcessMessageConcurrentMatchesSequential(t *testing.T) {
	ctx := context.Background()

	par := newTestHarness(nil, nil)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []conversation.Result
		errs    []error
	)
	for _, msg := range concurrentMessages {
		wg.Add(1)
		go func(msg string) {
			defer wg.Done()
			res, err := par.mgr.ProcessMessage(ctx, userTurn(msg))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}(msg)
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}

	// every call saw the state left by exactly one predecessor
	sort.Slice(results, func(i, j int) bool { return results[i].State.TurnCount < results[j].State.TurnCount })
	for i, res := range results {
		if res.State.TurnCount != i+1 {
			t.Fatalf("expected turn counts 1..%d, got %d at %d", len(concurrentMessages), res.State.TurnCount, i)
		}
	}
	got := outcomeOf(t, par)
	if len(got.turns) != len(concurrentMessages) {
		t.Fatalf("expected %d stored turns, got %d", len(concurrentMessages), len(got.turns))
	}

	// replaying the committed order one call at a time must give the same state
	seq := newTestHarness(nil, nil)
	for i, content := range got.contents {
		res, err := seq.mgr.ProcessMessage(ctx, userTurn(content))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.TurnID != results[i].TurnID || res.Strategy != results[i].Strategy || res.MemoryID != results[i].MemoryID {
			t.Fatalf("step %d diverged: concurrent %#v, sequential %#v", i, results[i], res)
		}
	}
	want := outcomeOf(t, seq)

	if got.turnCount != want.turnCount || got.turnCount != len(concurrentMessages) {
		t.Fatalf("expected %d turns, got %d concurrent and %d sequential", len(concurrentMessages), got.turnCount, want.turnCount)
	}
	if got.memories != want.memories || got.memories == 0 {
		t.Fatalf("expected matching memory counts, got %d concurrent and %d sequential", got.memories, want.memories)
	}
	if got.topics != want.topics {
		t.Fatalf("expected %d topics, got %d", want.topics, got.topics)
	}
	if got.moderated != want.moderated {
		t.Fatalf("expected %d moderation records, got %d", want.moderated, got.moderated)
	}
	for i := range want.turns {
		if got.turns[i] != want.turns[i] || got.contents[i] != want.contents[i] {
			t.Fatalf("turn %d differs: %s %q vs %s %q", i, got.turns[i], got.contents[i], want.turns[i], want.contents[i])
		}
	}
}
