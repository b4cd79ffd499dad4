package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/media"
	"github.com/easeaico/companion/internal/personality"
	"github.com/easeaico/companion/internal/prompt"
	"github.com/easeaico/companion/internal/storage/inmem"
	"github.com/easeaico/companion/internal/types"
)

const (
	convID       = "c1"
	caringReply  = "I understand, and I care about you."
	firstReply   = "I understand, and I am here to help."
	memorableMsg = "Remember that my family trip is tomorrow, I love them!"
)

var start = time.Date(2024, 8, 1, 20, 0, 0, 0, time.UTC)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

type fakeGenerator struct {
	replies  []string
	err      error
	requests []prompt.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req prompt.Request) (string, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "", errors.New("no reply configured")
	}
	reply := g.replies[0]
	if len(g.replies) > 1 {
		g.replies = g.replies[1:]
	}
	return reply, nil
}

type flakyTurns struct {
	conversation.TurnRepo
	fail bool
}

func (f *flakyTurns) AppendTurn(ctx context.Context, turn types.Turn) error {
	if f.fail {
		return errors.New("connection reset")
	}
	return f.TurnRepo.AppendTurn(ctx, turn)
}

type harness struct {
	mgr   *conversation.Manager
	store *inmem.Store
	clock *clock
}

func newHarness(repos conversation.Store, store *inmem.Store, gen conversation.Generator, mutate func(*conversation.Config)) *harness {
	lex := lexicon.Default()
	cfg := conversation.DefaultConfig(lex)
	cfg.Seed = 1
	if mutate != nil {
		mutate(&cfg)
	}
	c := &clock{t: start}
	seq := 0
	mgr := conversation.NewManager(repos, gen, media.HashEmbedder{}, lex, cfg,
		conversation.WithClock(c.now),
		conversation.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		}),
	)
	return &harness{mgr: mgr, store: store, clock: c}
}

func newTestHarness(gen conversation.Generator, mutate func(*conversation.Config)) *harness {
	store := inmem.New()
	return newHarness(store.Repos(), store, gen, mutate)
}

func userTurn(content string) types.Turn {
	return types.Turn{ConversationID: convID, Content: content}
}

func storedTurns(t *testing.T, s *inmem.Store) []types.Turn {
	t.Helper()
	turns, err := s.RecentTurns(context.Background(), convID, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return turns
}

func TestProcessMessageBlockedChangesNothing(t *testing.T) {
	h := newTestHarness(nil, func(cfg *conversation.Config) {
		cfg.Moderation.BannedWords = []string{"xyz123"}
	})
	res, err := h.mgr.ProcessMessage(context.Background(), userTurn("this is xyz123 test"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.Blocked || res.Verdict.IsAllowed {
		t.Fatalf("expected blocked verdict, got %#v", res)
	}
	if res.Verdict.FilteredContent != "this is ****** test" {
		t.Fatalf("expected redacted content, got %q", res.Verdict.FilteredContent)
	}
	if turns := storedTurns(t, h.store); len(turns) != 0 {
		t.Fatalf("expected no stored turns, got %d", len(turns))
	}
	if log := h.store.ModerationLog(); len(log) != 1 || log[0].ConversationID != convID {
		t.Fatalf("expected one moderation record, got %#v", log)
	}
	state, err := h.mgr.ConversationState(context.Background(), convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if state.State.TurnCount != 0 {
		t.Fatalf("expected untouched state, got %d turns", state.State.TurnCount)
	}
}

func TestProcessMessageJoyScenario(t *testing.T) {
	h := newTestHarness(nil, nil)
	res, err := h.mgr.ProcessMessage(context.Background(), userTurn("I had an amazing day, thank you so much!"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Emotion.Primary != "joy" || res.Emotion.Valence <= 0.5 || res.Emotion.Intensity <= 0 {
		t.Fatalf("expected joy reading, got %#v", res.Emotion)
	}
	if res.Strategy != conversation.StrategyTopicContinuation {
		t.Fatalf("expected %s on a fresh conversation, got %s", conversation.StrategyTopicContinuation, res.Strategy)
	}
	if res.Candidate == "" || strings.Contains(res.Candidate, "{") {
		t.Fatalf("expected filled candidate, got %q", res.Candidate)
	}
	if res.State.TurnCount != 1 || res.State.ContextRelevance != 1 {
		t.Fatalf("unexpected state %#v", res.State)
	}
	turns := storedTurns(t, h.store)
	if len(turns) != 1 || turns[0].Role != types.RoleUser || turns[0].ID != res.TurnID {
		t.Fatalf("expected stored user turn, got %#v", turns)
	}
	if !turns[0].Timestamp.Equal(start) {
		t.Fatalf("expected timestamp %v, got %v", start, turns[0].Timestamp)
	}
}

func TestProcessMessageEmotionalSupport(t *testing.T) {
	h := newTestHarness(nil, nil)
	res, err := h.mgr.ProcessMessage(context.Background(), userTurn("I feel so sad and hurt today"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Strategy != conversation.StrategyEmotionalSupport {
		t.Fatalf("expected %s, got %s", conversation.StrategyEmotionalSupport, res.Strategy)
	}
	if strings.Contains(res.Candidate, "{") {
		t.Fatalf("expected placeholders to be filled, got %q", res.Candidate)
	}
	if strings.Contains(res.Candidate, "feeling") && !strings.Contains(res.Candidate, "sadness") {
		t.Fatalf("expected emotion in candidate, got %q", res.Candidate)
	}
}

func TestProcessMessageTopicTransition(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()
	if _, err := h.mgr.ProcessMessage(ctx, userTurn("I worry about my job")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h.clock.t = start.Add(time.Minute)
	res, err := h.mgr.ProcessMessage(ctx, userTurn("My family dinner"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.State.ContextRelevance != 0 {
		t.Fatalf("expected disjoint topics, got relevance %v", res.State.ContextRelevance)
	}
	if res.Strategy != conversation.StrategyTopicTransition {
		t.Fatalf("expected %s, got %s", conversation.StrategyTopicTransition, res.Strategy)
	}
	if res.State.CurrentTopic != "family" || !strings.Contains(res.Candidate, "work") {
		t.Fatalf("expected transition from work to family, got %q / %q", res.State.CurrentTopic, res.Candidate)
	}
}

func TestProcessMessageStoresMemory(t *testing.T) {
	h := newTestHarness(nil, nil)
	res, err := h.mgr.ProcessMessage(context.Background(), userTurn(memorableMsg))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.MemoryID == "" {
		t.Fatalf("expected memory to be created")
	}
	memories, _ := h.store.Memories(context.Background(), convID)
	if len(memories) != 1 || memories[0].ID != res.MemoryID {
		t.Fatalf("expected stored memory %s, got %#v", res.MemoryID, memories)
	}
	if !slices.Contains(memories[0].AssociatedAttributes, "family") {
		t.Fatalf("expected family attribute, got %v", memories[0].AssociatedAttributes)
	}
	if len(memories[0].Embedding) != media.Dimensions {
		t.Fatalf("expected %d-dim embedding, got %d", media.Dimensions, len(memories[0].Embedding))
	}
}

func TestProcessMessageRejectsInvalidTurns(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()
	cases := []types.Turn{
		{Content: "hello"},
		{ConversationID: convID, Content: "   "},
		{ConversationID: convID, Content: "hello", Role: types.RoleAssistant},
	}
	for _, tc := range cases {
		if _, err := h.mgr.ProcessMessage(ctx, tc); !types.IsValidation(err) {
			t.Fatalf("expected validation error for %#v, got %v", tc, err)
		}
	}
	if log := h.store.ModerationLog(); len(log) != 0 {
		t.Fatalf("expected nothing moderated, got %d records", len(log))
	}
}

func TestProcessMessageStoreFailureEvicts(t *testing.T) {
	store := inmem.New()
	repos := store.Repos()
	turns := &flakyTurns{TurnRepo: repos.Turns, fail: true}
	repos.Turns = turns
	h := newHarness(repos, store, nil, nil)
	ctx := context.Background()

	_, err := h.mgr.ProcessMessage(ctx, userTurn("I feel so sad and hurt today"))
	if !types.IsCollaborator(err) {
		t.Fatalf("expected collaborator error, got %v", err)
	}

	turns.fail = false
	res, err := h.mgr.ProcessMessage(ctx, userTurn("hello again"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.State.TurnCount != 1 {
		t.Fatalf("expected state reloaded from committed turns, got %d turns", res.State.TurnCount)
	}
}

func TestHydrationRestoresState(t *testing.T) {
	store := inmem.New()
	first := newHarness(store.Repos(), store, nil, nil)
	ctx := context.Background()
	for i, msg := range []string{"My family is visiting", "My sister is in the family photo"} {
		first.clock.t = start.Add(time.Duration(i) * time.Minute)
		if _, err := first.mgr.ProcessMessage(ctx, userTurn(msg)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	second := newHarness(store.Repos(), store, nil, nil)
	second.clock.t = start.Add(2 * time.Minute)
	snap, err := second.mgr.ConversationState(ctx, convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if snap.State.TurnCount != 2 || snap.State.CurrentTopic != "family" {
		t.Fatalf("unexpected hydrated state %#v", snap.State)
	}
	if !strings.Contains(snap.ContextSummary, "My sister") {
		t.Fatalf("expected recent turn in summary, got %q", snap.ContextSummary)
	}
	if snap.PersonalitySnapshot == "" {
		t.Fatalf("expected personality snapshot")
	}
}

func TestRespondAcceptsConsistentReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{caringReply}}
	h := newTestHarness(gen, nil)
	reply, err := h.mgr.Respond(context.Background(), userTurn("I had an amazing day, thank you so much!"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply.Text != caringReply || reply.Attempts != 1 || reply.Fallback {
		t.Fatalf("unexpected reply %#v", reply)
	}
	if len(gen.requests) != 1 || gen.requests[0].Message != "I had an amazing day, thank you so much!" {
		t.Fatalf("unexpected requests %#v", gen.requests)
	}
	if len(gen.requests[0].History) != 0 {
		t.Fatalf("expected the current turn to be excluded from history, got %#v", gen.requests[0].History)
	}
	turns := storedTurns(t, h.store)
	if len(turns) != 2 || turns[1].Role != types.RoleAssistant || turns[1].ParentID != turns[0].ID {
		t.Fatalf("expected user turn and linked reply, got %#v", turns)
	}
}

func TestRespondAcceptsAnyFirstReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"Okay."}}
	h := newTestHarness(gen, nil)
	reply, err := h.mgr.Respond(context.Background(), userTurn("Tell me something"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply.Text != "Okay." || reply.Attempts != 1 || reply.Fallback {
		t.Fatalf("expected the first reply to be accepted as is, got %#v", reply)
	}
}

func TestRespondRegeneratesWithCorrection(t *testing.T) {
	gen := &fakeGenerator{replies: []string{firstReply, "Okay.", caringReply}}
	h := newTestHarness(gen, nil)
	ctx := context.Background()
	if _, err := h.mgr.Respond(ctx, userTurn("Hello there")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h.clock.t = start.Add(time.Minute)
	reply, err := h.mgr.Respond(ctx, userTurn("Tell me something"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply.Attempts != 2 || reply.Text != caringReply {
		t.Fatalf("expected accepted second attempt, got %#v", reply)
	}
	if !strings.Contains(gen.requests[2].System, personality.ReasonTraitConflict) {
		t.Fatalf("expected correction in regenerated prompt")
	}
}

func TestRespondFallsBackAfterRegenerations(t *testing.T) {
	gen := &fakeGenerator{replies: []string{firstReply, "Okay."}}
	h := newTestHarness(gen, func(cfg *conversation.Config) { cfg.MaxRegenerations = 2 })
	ctx := context.Background()
	if _, err := h.mgr.Respond(ctx, userTurn("Hello there")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	h.clock.t = start.Add(time.Minute)
	reply, err := h.mgr.Respond(ctx, userTurn("I had an amazing day, thank you so much!"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(gen.requests) != 4 || !reply.Fallback {
		t.Fatalf("expected 3 attempts then fallback, got %d requests fallback=%v", len(gen.requests), reply.Fallback)
	}
	var joy []string
	for _, e := range lexicon.Default().Emotions {
		if e.Name == "joy" {
			joy = e.Responses
		}
	}
	if !slices.Contains(joy, reply.Text) {
		t.Fatalf("expected a joy template, got %q", reply.Text)
	}
	if turns := storedTurns(t, h.store); len(turns) != 4 || turns[3].Content != reply.Text {
		t.Fatalf("expected fallback reply to be stored, got %#v", turns)
	}
}

func TestRespondGenerationFailurePersistsNothing(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	h := newTestHarness(gen, nil)
	ctx := context.Background()
	_, err := h.mgr.Respond(ctx, userTurn("I worry about my job"))
	if !types.IsCollaborator(err) {
		t.Fatalf("expected collaborator error, got %v", err)
	}
	if turns := storedTurns(t, h.store); len(turns) != 0 {
		t.Fatalf("expected nothing stored, got %d turns", len(turns))
	}

	res, err := h.mgr.ProcessMessage(ctx, userTurn("I worry about my job"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.State.TurnCount != 1 {
		t.Fatalf("expected discarded state, got %d turns", res.State.TurnCount)
	}
}

func TestRespondWithoutGenerator(t *testing.T) {
	h := newTestHarness(nil, nil)
	if _, err := h.mgr.Respond(context.Background(), userTurn("hello")); err == nil {
		t.Fatalf("expected error without generator")
	}
}

func TestValidateResponse(t *testing.T) {
	h := newTestHarness(&fakeGenerator{replies: []string{firstReply}}, nil)
	ctx := context.Background()
	if _, err := h.mgr.ProcessMessage(ctx, userTurn("Tell me something")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v, _ := h.mgr.ValidateResponse(ctx, convID, "Me too."); !v.IsConsistent {
		t.Fatalf("expected a consistent verdict before any reply, got %#v", v)
	}
	if _, err := h.mgr.Respond(ctx, userTurn("Tell me more")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	v, err := h.mgr.ValidateResponse(ctx, convID, "Okay.")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v.IsConsistent || v.Reason != personality.ReasonTraitConflict {
		t.Fatalf("expected trait conflict, got %#v", v)
	}
	if v, _ = h.mgr.ValidateResponse(ctx, convID, caringReply); !v.IsConsistent {
		t.Fatalf("expected consistent reply, got %#v", v)
	}

	h.clock.t = start.Add(40 * time.Minute)
	v, _ = h.mgr.ValidateResponse(ctx, convID, caringReply)
	if v.IsConsistent || !strings.HasPrefix(v.Reason, "Context coherence issues: ") || len(v.Gaps) != 1 {
		t.Fatalf("expected coherence gap, got %#v", v)
	}
}

func TestRelevantMemoriesPersistsAccess(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()
	if _, err := h.mgr.ProcessMessage(ctx, userTurn(memorableMsg)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	later := start.Add(time.Hour)
	h.clock.t = later
	found, err := h.mgr.RelevantMemories(ctx, convID, "family", 3)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(found) != 1 || !found[0].LastAccessed.Equal(later) {
		t.Fatalf("expected one accessed memory, got %#v", found)
	}
	stored, _ := h.store.Memories(ctx, convID)
	if len(stored) != 1 || !stored[0].LastAccessed.Equal(later) {
		t.Fatalf("expected persisted access time, got %#v", stored)
	}
	if _, err := h.mgr.RelevantMemories(ctx, convID, " ", 3); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSuggestNextAction(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()
	if _, err := h.mgr.ProcessMessage(ctx, userTurn("Hello there")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	action, err := h.mgr.SuggestNextAction(ctx, convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if action.Kind != conversation.ActionContinueEngagement {
		t.Fatalf("expected %s, got %#v", conversation.ActionContinueEngagement, action)
	}

	for i, msg := range []string{"I am so happy", "I feel sad", "I feel sad and hurt", "So sad today"} {
		h.clock.t = start.Add(time.Duration(i+1) * time.Minute)
		if _, err := h.mgr.ProcessMessage(ctx, userTurn(msg)); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	action, _ = h.mgr.SuggestNextAction(ctx, convID)
	if action.Kind != conversation.ActionEmotionalSupport {
		t.Fatalf("expected %s, got %#v", conversation.ActionEmotionalSupport, action)
	}
}

func TestShareMediaAndRecommendations(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()

	beach := types.MediaItem{ID: "beach", ConversationID: convID, Kind: types.MediaImage, Caption: "Sunset at the beach with my dog"}
	fp, err := h.mgr.ShareMedia(ctx, beach)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(fp.Categories, []string{"nature", "pets"}) {
		t.Fatalf("unexpected categories %v", fp.Categories)
	}
	if _, ok := h.store.Fingerprint("beach"); !ok {
		t.Fatalf("expected stored fingerprint")
	}
	h.clock.t = start.Add(time.Second)
	if _, err := h.mgr.ShareMedia(ctx, types.MediaItem{ID: "pasta", ConversationID: convID, Kind: types.MediaImage, Caption: "A plate of pasta"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := h.mgr.ShareMedia(ctx, types.MediaItem{ConversationID: convID, Kind: "video"}); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if err := h.mgr.RecordMediaInteraction(ctx, types.MediaInteraction{MediaID: "beach", ConversationID: convID, Kind: types.InteractionShare}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := h.mgr.RecordMediaInteraction(ctx, types.MediaInteraction{MediaID: "beach", ConversationID: convID, Kind: "like"}); !types.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	recs, err := h.mgr.Recommendations(ctx, convID, nil, nil, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(recs) != 2 || recs[0].Item.ID != "beach" {
		t.Fatalf("expected shared item first, got %#v", recs)
	}
}

func TestModerateContentLogsVerdict(t *testing.T) {
	h := newTestHarness(nil, nil)
	verdict, err := h.mgr.ModerateContent(context.Background(), convID, strings.Repeat("a", 1001))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if verdict.IsAllowed || !verdict.DetectedIssues[types.IssueLength] {
		t.Fatalf("expected length block, got %#v", verdict)
	}
	if log := h.store.ModerationLog(); len(log) != 1 {
		t.Fatalf("expected one moderation record, got %d", len(log))
	}
	if stats := h.mgr.Moderator().Stats(); stats.Total != 1 || stats.Blocked != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}
}

func TestInterestAndTopicSummaries(t *testing.T) {
	h := newTestHarness(nil, nil)
	ctx := context.Background()
	if _, err := h.mgr.ProcessMessage(ctx, userTurn("I love music and I enjoy music festivals")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	interests, err := h.mgr.InterestSummary(ctx, convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(interests.TopInterests) == 0 {
		t.Fatalf("expected a learned interest")
	}
	topics, err := h.mgr.TopicSummary(ctx, convID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if topics.CurrentTopic == "" {
		t.Fatalf("expected a current topic, got %#v", topics)
	}
}
