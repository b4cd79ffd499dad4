// Package inmem keeps conversation state in process memory. It backs tests and
// runs without a database.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/easeaico/companion/internal/conversation"
	"github.com/easeaico/companion/internal/types"
)

// Store implements every conversation repository. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	turns        map[string][]types.Turn
	topics       map[string]map[string]types.Topic
	transitions  map[string][]types.TopicTransition
	memories     map[string]map[string]types.Memory
	attributes   map[string]map[string]types.PersonalityAttribute
	states       map[string]types.EmotionalState
	interests    map[string]map[string]types.Interest
	preferences  map[string]map[string]types.Preference
	moderation   []types.ModerationRecord
	media        map[string]types.MediaItem
	fingerprints map[string]types.MediaFingerprint
	interactions map[string][]types.MediaInteraction
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		turns:        make(map[string][]types.Turn),
		topics:       make(map[string]map[string]types.Topic),
		transitions:  make(map[string][]types.TopicTransition),
		memories:     make(map[string]map[string]types.Memory),
		attributes:   make(map[string]map[string]types.PersonalityAttribute),
		states:       make(map[string]types.EmotionalState),
		interests:    make(map[string]map[string]types.Interest),
		preferences:  make(map[string]map[string]types.Preference),
		media:        make(map[string]types.MediaItem),
		fingerprints: make(map[string]types.MediaFingerprint),
		interactions: make(map[string][]types.MediaInteraction),
	}
}

// Repos returns s as every repository.
func (s *Store) Repos() conversation.Store {
	return conversation.Store{
		Turns:       s,
		Topics:      s,
		Memories:    s,
		Personality: s,
		Interests:   s,
		Moderation:  s,
		Media:       s,
	}
}

func (s *Store) AppendTurn(_ context.Context, turn types.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.turns[turn.ConversationID] {
		if t.ID == turn.ID {
			return fmt.Errorf("failed to insert turn: duplicate id %s", turn.ID)
		}
	}
	s.turns[turn.ConversationID] = append(s.turns[turn.ConversationID], turn)
	return nil
}

func (s *Store) RecentTurns(_ context.Context, conversationID string, limit int) ([]types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.turns[conversationID], limit), nil
}

func (s *Store) UpsertTopics(_ context.Context, topics []types.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range topics {
		byName := s.topics[t.ConversationID]
		if byName == nil {
			byName = make(map[string]types.Topic)
			s.topics[t.ConversationID] = byName
		}
		t.RelatedTopics = cloneStrings(t.RelatedTopics)
		t.ContextHistory = cloneStrings(t.ContextHistory)
		byName[t.Name] = t
	}
	return nil
}

func (s *Store) Topics(_ context.Context, conversationID string) ([]types.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Topic, 0, len(s.topics[conversationID]))
	for _, t := range s.topics[conversationID] {
		t.RelatedTopics = cloneStrings(t.RelatedTopics)
		t.ContextHistory = cloneStrings(t.ContextHistory)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastDiscussed.Equal(out[j].LastDiscussed) {
			return out[i].Name < out[j].Name
		}
		return out[i].LastDiscussed.Before(out[j].LastDiscussed)
	})
	return out, nil
}

func (s *Store) AppendTransition(_ context.Context, transition types.TopicTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[transition.ConversationID] = append(s.transitions[transition.ConversationID], transition)
	return nil
}

func (s *Store) Transitions(_ context.Context, conversationID string, limit int) ([]types.TopicTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.transitions[conversationID], limit), nil
}

func (s *Store) SaveMemory(_ context.Context, memory types.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.memories[memory.ConversationID]
	if byID == nil {
		byID = make(map[string]types.Memory)
		s.memories[memory.ConversationID] = byID
	}
	memory.AssociatedAttributes = cloneStrings(memory.AssociatedAttributes)
	memory.Embedding = append([]float32(nil), memory.Embedding...)
	byID[memory.ID] = memory
	return nil
}

func (s *Store) DeleteMemories(_ context.Context, conversationID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.memories[conversationID], id)
	}
	return nil
}

func (s *Store) Memories(_ context.Context, conversationID string) ([]types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Memory, 0, len(s.memories[conversationID]))
	for _, m := range s.memories[conversationID] {
		m.AssociatedAttributes = cloneStrings(m.AssociatedAttributes)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveAttributes(_ context.Context, attrs []types.PersonalityAttribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range attrs {
		byName := s.attributes[a.ConversationID]
		if byName == nil {
			byName = make(map[string]types.PersonalityAttribute)
			s.attributes[a.ConversationID] = byName
		}
		byName[a.Name] = a
	}
	return nil
}

func (s *Store) Attributes(_ context.Context, conversationID string) ([]types.PersonalityAttribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PersonalityAttribute, 0, len(s.attributes[conversationID]))
	for _, a := range s.attributes[conversationID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveEmotionalState(_ context.Context, state types.EmotionalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ConversationID] = state
	return nil
}

func (s *Store) EmotionalState(_ context.Context, conversationID string) (*types.EmotionalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[conversationID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (s *Store) UpsertInterests(_ context.Context, interests []types.Interest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range interests {
		byTopic := s.interests[in.ConversationID]
		if byTopic == nil {
			byTopic = make(map[string]types.Interest)
			s.interests[in.ConversationID] = byTopic
		}
		in.RelatedTopics = cloneStrings(in.RelatedTopics)
		byTopic[in.Topic] = in
	}
	return nil
}

func (s *Store) Interests(_ context.Context, conversationID string) ([]types.Interest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Interest, 0, len(s.interests[conversationID]))
	for _, in := range s.interests[conversationID] {
		in.RelatedTopics = cloneStrings(in.RelatedTopics)
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out, nil
}

func (s *Store) UpsertPreferences(_ context.Context, prefs []types.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range prefs {
		byKey := s.preferences[p.ConversationID]
		if byKey == nil {
			byKey = make(map[string]types.Preference)
			s.preferences[p.ConversationID] = byKey
		}
		p.Context = cloneStrings(p.Context)
		byKey[p.Category+"\x00"+p.Value] = p
	}
	return nil
}

func (s *Store) Preferences(_ context.Context, conversationID string) ([]types.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Preference, 0, len(s.preferences[conversationID]))
	for _, p := range s.preferences[conversationID] {
		p.Context = cloneStrings(p.Context)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category == out[j].Category {
			return out[i].Value < out[j].Value
		}
		return out[i].Category < out[j].Category
	})
	return out, nil
}

func (s *Store) LogModeration(_ context.Context, record types.ModerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderation = append(s.moderation, record)
	return nil
}

// ModerationLog returns every logged moderation decision, oldest first.
func (s *Store) ModerationLog() []types.ModerationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.ModerationRecord(nil), s.moderation...)
}

func (s *Store) SaveMedia(_ context.Context, item types.MediaItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.media[item.ID]; ok {
		existing.Kind = item.Kind
		existing.Caption = item.Caption
		s.media[item.ID] = existing
		return nil
	}
	s.media[item.ID] = item
	return nil
}

func (s *Store) Media(_ context.Context, conversationID string) ([]types.MediaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.MediaItem
	for _, item := range s.media {
		if item.ConversationID == conversationID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SaveFingerprint(_ context.Context, fp types.MediaFingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[fp.MediaID]; !ok {
		return fmt.Errorf("failed to update media fingerprint: media %s not found", fp.MediaID)
	}
	s.fingerprints[fp.MediaID] = fp
	return nil
}

// Fingerprint returns the stored fingerprint of a media item.
func (s *Store) Fingerprint(mediaID string) (types.MediaFingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.fingerprints[mediaID]
	return fp, ok
}

func (s *Store) AppendInteraction(_ context.Context, in types.MediaInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[in.ConversationID] = append(s.interactions[in.ConversationID], in)
	return nil
}

func (s *Store) Interactions(_ context.Context, conversationID string, limit int) ([]types.MediaInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := tail(s.interactions[conversationID], limit)
	// Newest -> oldest
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// tail copies the last limit elements of list; limit <= 0 copies all.
func tail[T any](list []T, limit int) []T {
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]T(nil), list...)
}

func cloneStrings(list []string) []string {
	if list == nil {
		return nil
	}
	return append([]string(nil), list...)
}
