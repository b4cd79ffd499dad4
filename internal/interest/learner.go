// Package interest learns user interests and communication preferences from messages.
package interest

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	newInterestConfidence = 0.3
	confidenceStep        = 0.1
	matchConfidence       = 0.3
	preferenceFloor       = 0.3
	preferenceContext     = 5
	topInterests          = 5
	recentPreferences     = 3
	suggestionLimit       = 5
	exploredFloor         = 2
	unexploredPerCategory = 2
)

type indicator struct {
	category string
	value    string
	pattern  *regexp.Regexp
}

// Result lists the interests and preferences changed by one message.
type Result struct {
	Interests   []types.Interest
	Preferences []types.Preference
}

// Summary is a read model of what has been learned.
type Summary struct {
	TopInterests      []types.Interest
	RecentPreferences []types.Preference
	Suggestions       []string
}

// Learner accumulates interests and preferences for one conversation.
type Learner struct {
	conversationID string
	categories     []lexicon.Group
	indicators     []indicator
	interests      map[string]*types.Interest
	interestOrder  []string
	preferences    map[string]*types.Preference
	prefOrder      []string
}

// NewLearner returns an empty Learner.
func NewLearner(lex *lexicon.Lexicon, conversationID string) *Learner {
	l := &Learner{
		conversationID: conversationID,
		categories:     lex.Interests.Categories,
		interests:      make(map[string]*types.Interest),
		preferences:    make(map[string]*types.Preference),
	}
	for _, group := range lex.Interests.Preferences {
		for _, v := range group.Values {
			if p, ok := lex.Interests.Indicators[v]; ok {
				l.indicators = append(l.indicators, indicator{
					category: group.Name,
					value:    v,
					pattern:  regexp.MustCompile(`(?i)` + p),
				})
			}
		}
	}
	return l
}

// Learn extracts interests and preferences from text.
func (l *Learner) Learn(text string, sentiment float64, now time.Time) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, types.NewValidationError("content", "cannot be empty")
	}
	if math.IsNaN(sentiment) || math.IsInf(sentiment, 0) {
		return Result{}, types.NewValidationError("sentiment", "must be a finite number")
	}
	sentiment = math.Max(-1, math.Min(1, sentiment))

	var result Result
	detected := l.extractTopics(text)
	for _, d := range detected {
		related := make([]string, 0, len(detected)-1)
		for _, other := range detected {
			if other.topic != d.topic {
				related = append(related, other.topic)
			}
		}
		result.Interests = append(result.Interests, l.updateInterest(d.category, d.topic, sentiment, related, now))
	}

	for _, ind := range l.indicators {
		matches := len(ind.pattern.FindAllStringIndex(text, -1))
		confidence := math.Min(float64(matches)*matchConfidence, 1)
		if confidence > preferenceFloor {
			result.Preferences = append(result.Preferences, l.updatePreference(ind.category, ind.value, confidence, text, now))
		}
	}
	return result, nil
}

type detection struct {
	category string
	topic    string
}

func (l *Learner) extractTopics(text string) []detection {
	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var out []detection
	for _, c := range l.categories {
		for _, topic := range c.Topics {
			if seen[topic] || !strings.Contains(lower, topic) {
				continue
			}
			seen[topic] = true
			out = append(out, detection{category: c.Name, topic: topic})
		}
	}
	return out
}

func (l *Learner) updateInterest(category, topic string, sentiment float64, related []string, now time.Time) types.Interest {
	in, ok := l.interests[topic]
	if !ok {
		in = &types.Interest{
			ConversationID: l.conversationID,
			Category:       category,
			Topic:          topic,
			Sentiment:      sentiment,
			Frequency:      1,
			Confidence:     newInterestConfidence,
		}
		l.interests[topic] = in
		l.interestOrder = append(l.interestOrder, topic)
	} else {
		in.Frequency++
		in.Sentiment += (sentiment - in.Sentiment) / float64(in.Frequency)
		in.Confidence = math.Min(in.Confidence+confidenceStep, 1)
	}
	for _, r := range related {
		if !contains(in.RelatedTopics, r) {
			in.RelatedTopics = append(in.RelatedTopics, r)
		}
	}
	in.LastMentioned = now
	return cloneInterest(*in)
}

func (l *Learner) updatePreference(category, value string, strength float64, text string, now time.Time) types.Preference {
	key := category + "/" + value
	p, ok := l.preferences[key]
	if !ok {
		p = &types.Preference{
			ConversationID: l.conversationID,
			Category:       category,
			Value:          value,
			Strength:       strength,
		}
		l.preferences[key] = p
		l.prefOrder = append(l.prefOrder, key)
	} else {
		p.Strength = (p.Strength + strength) / 2
	}
	p.Context = append(p.Context, text)
	if len(p.Context) > preferenceContext {
		p.Context = p.Context[len(p.Context)-preferenceContext:]
	}
	p.LastUpdated = now
	return clonePreference(*p)
}

// Summary returns the strongest interests, the freshest preferences and exploration suggestions.
func (l *Learner) Summary() Summary {
	interests := l.Interests()
	sort.SliceStable(interests, func(i, j int) bool {
		return float64(interests[i].Frequency)*interests[i].Confidence > float64(interests[j].Frequency)*interests[j].Confidence
	})
	top := interests
	if len(top) > topInterests {
		top = top[:topInterests]
	}

	prefs := l.Preferences()
	sort.SliceStable(prefs, func(i, j int) bool { return prefs[i].LastUpdated.After(prefs[j].LastUpdated) })
	if len(prefs) > recentPreferences {
		prefs = prefs[:recentPreferences]
	}

	return Summary{TopInterests: top, RecentPreferences: prefs, Suggestions: l.Suggestions()}
}

// Suggestions proposes topics the user has not talked about yet.
func (l *Learner) Suggestions() []string {
	var out []string
	add := func(topic string) {
		if len(out) < suggestionLimit && !contains(out, topic) {
			out = append(out, topic)
		}
	}

	byFrequency := l.Interests()
	sort.SliceStable(byFrequency, func(i, j int) bool { return byFrequency[i].Frequency > byFrequency[j].Frequency })
	if len(byFrequency) > 3 {
		byFrequency = byFrequency[:3]
	}
	for _, in := range byFrequency {
		for _, r := range in.RelatedTopics {
			if _, tracked := l.interests[r]; !tracked {
				add(r)
			}
		}
	}

	for _, c := range l.categories {
		explored := 0
		var unexplored []string
		for _, topic := range c.Topics {
			if _, ok := l.interests[topic]; ok {
				explored++
			} else {
				unexplored = append(unexplored, topic)
			}
		}
		if explored >= exploredFloor {
			continue
		}
		for i := 0; i < len(unexplored) && i < unexploredPerCategory; i++ {
			add(unexplored[i])
		}
	}
	return out
}

// Interests returns tracked interests in first-seen order.
func (l *Learner) Interests() []types.Interest {
	out := make([]types.Interest, 0, len(l.interestOrder))
	for _, k := range l.interestOrder {
		out = append(out, cloneInterest(*l.interests[k]))
	}
	return out
}

// Preferences returns tracked preferences in first-seen order.
func (l *Learner) Preferences() []types.Preference {
	out := make([]types.Preference, 0, len(l.prefOrder))
	for _, k := range l.prefOrder {
		out = append(out, clonePreference(*l.preferences[k]))
	}
	return out
}

// Load restores persisted interests and preferences.
func (l *Learner) Load(interests []types.Interest, prefs []types.Preference) {
	l.interests = make(map[string]*types.Interest, len(interests))
	l.interestOrder = nil
	for _, in := range interests {
		c := cloneInterest(in)
		if _, dup := l.interests[c.Topic]; !dup {
			l.interestOrder = append(l.interestOrder, c.Topic)
		}
		l.interests[c.Topic] = &c
	}
	l.preferences = make(map[string]*types.Preference, len(prefs))
	l.prefOrder = nil
	for _, p := range prefs {
		c := clonePreference(p)
		key := c.Category + "/" + c.Value
		if _, dup := l.preferences[key]; !dup {
			l.prefOrder = append(l.prefOrder, key)
		}
		l.preferences[key] = &c
	}
}

func cloneInterest(in types.Interest) types.Interest {
	in.RelatedTopics = append([]string(nil), in.RelatedTopics...)
	return in
}

func clonePreference(p types.Preference) types.Preference {
	p.Context = append([]string(nil), p.Context...)
	return p
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
