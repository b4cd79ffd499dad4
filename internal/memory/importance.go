package memory

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/easeaico/companion/internal/lexicon"
)

const (
	weightEmotional = 0.30
	weightLength    = 0.15
	weightPersonal  = 0.25
	weightRecency   = 0.15
	weightContext   = 0.15
)

var numberPattern = regexp.MustCompile(`\d+`)

type scorer struct {
	positive       []string
	negative       []string
	pronouns       []*regexp.Regexp
	personalTopics []string
	importance     []string
	timeWords      []string
}

func newScorer(lex *lexicon.Lexicon) *scorer {
	s := &scorer{
		positive:       lex.Memory.PositiveWords,
		negative:       lex.Memory.NegativeWords,
		personalTopics: lex.Memory.PersonalTopics,
		importance:     lex.Memory.ImportanceWords,
		timeWords:      lex.Memory.TimeWords,
	}
	for _, p := range lex.Memory.Pronouns {
		s.pronouns = append(s.pronouns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(p)+`\b`))
	}
	return s
}

// importanceOf computes a deterministic importance score in [0,1] for a new memory.
func (s *scorer) importanceOf(content, context string) float64 {
	lower := strings.ToLower(content)
	score := weightEmotional*s.emotional(content, lower) +
		weightLength*lengthFactor(content) +
		weightPersonal*s.personal(content, lower) +
		weightRecency*1.0 +
		weightContext*s.contextual(strings.ToLower(content+" "+context))
	return clamp01(score)
}

func (s *scorer) emotional(content, lower string) float64 {
	score := 0.0
	for _, w := range s.positive {
		if strings.Contains(lower, w) {
			score += 0.2
		}
	}
	for _, w := range s.negative {
		if strings.Contains(lower, w) {
			score += 0.2
		}
	}

	marks := strings.Count(content, "!") + strings.Count(content, "?")
	score += math.Min(float64(marks)*0.1, 0.3)

	shouting := 0
	for _, word := range strings.Fields(content) {
		if isShouted(word) {
			shouting++
		}
	}
	score += math.Min(float64(shouting)*0.1, 0.2)
	return clamp01(score)
}

func lengthFactor(content string) float64 {
	chars := float64(len([]rune(content)))
	words := float64(len(strings.Fields(content)))
	return clamp01(math.Min(chars/1000, 1) * (words / 200))
}

func (s *scorer) personal(content, lower string) float64 {
	score := 0.0
	for _, re := range s.pronouns {
		score += float64(len(re.FindAllStringIndex(content, -1))) * 0.1
	}
	for _, topic := range s.personalTopics {
		if strings.Contains(lower, topic) {
			score += 0.15
		}
	}
	numbers := len(numberPattern.FindAllStringIndex(content, -1))
	score += math.Min(float64(numbers)*0.1, 0.2)
	return clamp01(score)
}

func (s *scorer) contextual(lower string) float64 {
	score := 0.0
	for _, w := range s.importance {
		if strings.Contains(lower, w) {
			score += 0.25
		}
	}
	for _, w := range s.timeWords {
		if strings.Contains(lower, w) {
			score += 0.15
		}
	}
	return clamp01(score)
}

// isShouted reports whether word is an all-caps word longer than two letters.
func isShouted(word string) bool {
	letters := 0
	for _, r := range word {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 2
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
