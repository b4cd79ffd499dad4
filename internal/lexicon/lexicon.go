// Package lexicon loads the immutable lookup tables used by the analyzers.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Emotion is one emotion category of the lexicon.
type Emotion struct {
	Name      string   `yaml:"name"`
	Weight    float64  `yaml:"weight"`
	Valence   float64  `yaml:"valence"`
	Arousal   float64  `yaml:"arousal"`
	Keywords  []string `yaml:"keywords"`
	Patterns  []string `yaml:"patterns"`
	Responses []string `yaml:"responses"`
}

// WeightedTopic is a keyword group with a scoring weight.
type WeightedTopic struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// Trait is a personality dimension with its baseline and optional tone pattern.
type Trait struct {
	Name     string  `yaml:"name"`
	Baseline float64 `yaml:"baseline"`
	Pattern  string  `yaml:"pattern"`
}

// Interaction is an undirected edge of the trait graph.
type Interaction struct {
	A      string  `yaml:"a"`
	B      string  `yaml:"b"`
	Weight float64 `yaml:"weight"`
}

type Personality struct {
	Traits            []Trait       `yaml:"traits"`
	Interactions      []Interaction `yaml:"interactions"`
	PositiveMoodWords []string      `yaml:"positive_mood_words"`
	NegativeMoodWords []string      `yaml:"negative_mood_words"`
	NegativeTone      string        `yaml:"negative_tone"`
	PositiveTone      string        `yaml:"positive_tone"`
}

type Memory struct {
	PositiveWords     []string `yaml:"positive_words"`
	NegativeWords     []string `yaml:"negative_words"`
	Pronouns          []string `yaml:"pronouns"`
	PersonalTopics    []string `yaml:"personal_topics"`
	ImportanceWords   []string `yaml:"importance_words"`
	TimeWords         []string `yaml:"time_words"`
	PositiveSentiment []string `yaml:"positive_sentiment"`
	NegativeSentiment []string `yaml:"negative_sentiment"`
	TriggerPhrases    []string `yaml:"trigger_phrases"`
}

type Topics struct {
	ExtractionPatterns []string `yaml:"extraction_patterns"`
	ForcedPhrases      []string `yaml:"forced_phrases"`
	SuggestedPhrases   []string `yaml:"suggested_phrases"`
}

// Group is a named list of words.
type Group struct {
	Name   string   `yaml:"name"`
	Topics []string `yaml:"topics"`
	Values []string `yaml:"values"`
	// Keywords is used by keyword-matched groups.
	Keywords []string `yaml:"keywords"`
}

type Interests struct {
	Categories  []Group           `yaml:"categories"`
	Preferences []Group           `yaml:"preferences"`
	Indicators  map[string]string `yaml:"indicators"`
}

type Moderation struct {
	SensitiveTopics []string `yaml:"sensitive_topics"`
	ToxicIndicators []string `yaml:"toxic_indicators"`
	WarningWords    []string `yaml:"warning_words"`
	BannedWords     []string `yaml:"banned_words"`
}

type Conversation struct {
	Topics           []Group             `yaml:"topics"`
	MemoryAttributes []string            `yaml:"memory_attributes"`
	Strategies       map[string][]string `yaml:"strategies"`
}

// Lexicon is the full set of lookup tables.
type Lexicon struct {
	Emotions         []Emotion       `yaml:"emotions"`
	NeutralResponses []string        `yaml:"neutral_responses"`
	ContextTopics    []WeightedTopic `yaml:"context_topics"`
	Personality      Personality     `yaml:"personality"`
	Memory           Memory          `yaml:"memory"`
	Topics           Topics          `yaml:"topics"`
	Interests        Interests       `yaml:"interests"`
	Moderation       Moderation      `yaml:"moderation"`
	MediaCategories  []Group         `yaml:"media_categories"`
	Conversation     Conversation    `yaml:"conversation"`
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
	defaultErr  error
)

// Default returns the embedded lexicon. It panics if the embedded file is invalid.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		defaultLex, defaultErr = Parse(defaultYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("embedded lexicon is invalid: %v", defaultErr))
	}
	return defaultLex
}

// Load reads a lexicon from path, falling back to the embedded one when path is empty.
func Load(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML lexicon.
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to decode lexicon: %w", err)
	}
	if err := lex.Validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

// Validate checks that every table is present and every pattern compiles.
func (l *Lexicon) Validate() error {
	if len(l.Emotions) == 0 {
		return fmt.Errorf("lexicon has no emotions")
	}
	for _, e := range l.Emotions {
		if e.Name == "" || e.Weight <= 0 {
			return fmt.Errorf("emotion %q needs a name and positive weight", e.Name)
		}
		for _, p := range e.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("emotion %s pattern %q: %w", e.Name, p, err)
			}
		}
	}
	if len(l.ContextTopics) == 0 {
		return fmt.Errorf("lexicon has no context topics")
	}
	if len(l.Personality.Traits) == 0 {
		return fmt.Errorf("lexicon has no personality traits")
	}
	traits := make(map[string]bool, len(l.Personality.Traits))
	for _, t := range l.Personality.Traits {
		traits[t.Name] = true
		if t.Pattern != "" {
			if _, err := regexp.Compile(WordPattern(t.Pattern)); err != nil {
				return fmt.Errorf("trait %s pattern: %w", t.Name, err)
			}
		}
	}
	for _, edge := range l.Personality.Interactions {
		if !traits[edge.A] || !traits[edge.B] {
			return fmt.Errorf("interaction %s-%s references unknown trait", edge.A, edge.B)
		}
		if edge.Weight < -1 || edge.Weight > 1 {
			return fmt.Errorf("interaction %s-%s weight out of range", edge.A, edge.B)
		}
	}
	for _, p := range []string{l.Personality.NegativeTone, l.Personality.PositiveTone} {
		if _, err := regexp.Compile(WordPattern(p)); err != nil {
			return fmt.Errorf("tone pattern %q: %w", p, err)
		}
	}
	for _, p := range l.Topics.ExtractionPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("topic pattern %q: %w", p, err)
		}
	}
	for name, p := range l.Interests.Indicators {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("indicator %s: %w", name, err)
		}
	}
	if len(l.Conversation.Strategies["default"]) == 0 {
		return fmt.Errorf("lexicon has no default strategy templates")
	}
	return nil
}

// TraitNames returns the trait names in declaration order.
func (l *Lexicon) TraitNames() []string {
	names := make([]string, 0, len(l.Personality.Traits))
	for _, t := range l.Personality.Traits {
		names = append(names, t.Name)
	}
	return names
}

// WordPattern turns an alternation such as "help|care" into a case-insensitive
// regexp source that only matches whole words.
func WordPattern(alternation string) string {
	return `(?i)\b(` + alternation + `)\b`
}
