package conversation

import (
	"math/rand"
	"strings"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

const (
	StrategyEmotionalSupport  = "emotional_support"
	StrategyTopicContinuation = "topic_continuation"
	StrategyTopicTransition   = "topic_transition"
	StrategyClarification     = "clarification"
	StrategyDefault           = "default"
)

const (
	ActionEmotionalSupport   = "emotional_support"
	ActionTopicConnection    = "topic_connection"
	ActionTopicExpansion     = "topic_expansion"
	ActionContinueEngagement = "continue_engagement"
)

const (
	distressValence       = -0.3
	distressStability     = 0.5
	disconnectedRelevance = 0.3
	focusedRelevance      = 0.8
	focusedTurns          = 5
	topicHistoryLimit     = 10
	relevanceLookback     = 3
	fallbackTopic         = "that"
	fallbackEmotion       = "this way"
)

// State is the running orchestration state of one conversation.
type State struct {
	TurnCount        int
	CurrentTopic     string
	ContextRelevance float64
	Emotion          types.EmotionReading
	LastResponseType string
}

// NextAction is a coarse hint about where the conversation should go next.
type NextAction struct {
	Kind   string
	Reason string
}

type strategyRule struct {
	name    string
	applies func(State) bool
}

// strategyRules is evaluated in order; the first match wins.
var strategyRules = []strategyRule{
	{StrategyEmotionalSupport, func(s State) bool { return s.Emotion.Valence < -0.3 }},
	{StrategyTopicContinuation, func(s State) bool { return s.ContextRelevance > 0.7 }},
	{StrategyTopicTransition, func(s State) bool { return s.ContextRelevance < 0.3 }},
	{StrategyClarification, func(s State) bool { return s.ContextRelevance < 0.5 }},
}

func selectStrategy(s State) string {
	for _, r := range strategyRules {
		if r.applies(s) {
			return r.name
		}
	}
	return StrategyDefault
}

// candidateFor picks one template of strategy and fills its placeholders.
func candidateFor(lex *lexicon.Lexicon, rng *rand.Rand, strategy string, s State, previousTopic string) string {
	templates := lex.Conversation.Strategies[strategy]
	if len(templates) == 0 {
		templates = lex.Conversation.Strategies[StrategyDefault]
	}
	if len(templates) == 0 {
		return ""
	}
	return fillTemplate(templates[rng.Intn(len(templates))], s, previousTopic)
}

func fillTemplate(tmpl string, s State, previousTopic string) string {
	emotion := s.Emotion.Primary
	if emotion == "" || emotion == "neutral" {
		emotion = fallbackEmotion
	}
	topic := s.CurrentTopic
	if topic == "" {
		topic = fallbackTopic
	}
	if previousTopic == "" {
		previousTopic = topic
	}
	r := strings.NewReplacer("{emotion}", emotion, "{topic}", topic, "{previous_topic}", previousTopic)
	return r.Replace(tmpl)
}

// extractTopics returns the names of conversation topic groups whose keywords appear in text.
func extractTopics(groups []lexicon.Group, text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, g := range groups {
		for _, kw := range g.Keywords {
			if strings.Contains(lower, kw) {
				out = append(out, g.Name)
				break
			}
		}
	}
	return out
}

// contextRelevance is the share of current topics already seen in prior.
// It is 1 when nothing came before.
func contextRelevance(current, prior []string) float64 {
	if len(prior) == 0 {
		return 1
	}
	seen := make(map[string]bool, len(prior))
	for _, p := range prior {
		seen[p] = true
	}
	overlap := 0
	for _, c := range current {
		if seen[c] {
			overlap++
		}
	}
	return float64(overlap) / float64(max(len(current), 1))
}

// previousTopic returns the topic before the current one, or the current one.
func previousTopic(history []string, current string) string {
	if len(history) >= 2 {
		return history[len(history)-2]
	}
	return current
}

func suggestNextAction(trend types.EmotionTrend, s State, topicHistory int) NextAction {
	switch {
	case trend.AvgValence < distressValence && trend.Stability < distressStability:
		return NextAction{
			Kind:   ActionEmotionalSupport,
			Reason: "User shows signs of emotional distress. Provide empathetic support.",
		}
	case s.ContextRelevance < disconnectedRelevance && topicHistory > 1:
		return NextAction{
			Kind:   ActionTopicConnection,
			Reason: "Conversation seems disconnected. Try to bridge current topic with previous ones.",
		}
	case s.TurnCount > focusedTurns && s.ContextRelevance > focusedRelevance:
		return NextAction{
			Kind:   ActionTopicExpansion,
			Reason: "Conversation is focused but might benefit from exploring related topics.",
		}
	default:
		return NextAction{
			Kind:   ActionContinueEngagement,
			Reason: "Maintain current conversation flow and encourage user expression.",
		}
	}
}

// shouldRemember reports whether a turn is a memory candidate. User turns always are;
// replies only when they carry a trigger phrase.
func shouldRemember(lex *lexicon.Lexicon, role, content string) bool {
	if role != types.RoleAssistant {
		return true
	}
	lower := strings.ToLower(content)
	for _, p := range lex.Memory.TriggerPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// memoryAttributes returns the configured attributes mentioned in content.
func memoryAttributes(lex *lexicon.Lexicon, content string) []string {
	lower := strings.ToLower(content)
	var out []string
	for _, a := range lex.Conversation.MemoryAttributes {
		if strings.Contains(lower, a) {
			out = append(out, a)
		}
	}
	return out
}
