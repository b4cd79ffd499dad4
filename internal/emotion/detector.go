package emotion

import (
	"regexp"
	"strings"

	"github.com/easeaico/companion/internal/lexicon"
	"github.com/easeaico/companion/internal/types"
)

type category struct {
	name     string
	weight   float64
	valence  float64
	arousal  float64
	keywords []*regexp.Regexp
	patterns []*regexp.Regexp
}

// Detector scores text against the emotion lexicon. It holds no per-conversation
// state and is safe for concurrent use.
type Detector struct {
	categories []category
	responses  map[string][]string
	neutral    []string
}

// NewDetector compiles the emotion tables of lex.
func NewDetector(lex *lexicon.Lexicon) *Detector {
	d := &Detector{
		responses: make(map[string][]string, len(lex.Emotions)),
		neutral:   lex.NeutralResponses,
	}
	for _, e := range lex.Emotions {
		c := category{name: e.Name, weight: e.Weight, valence: e.Valence, arousal: e.Arousal}
		for _, kw := range e.Keywords {
			c.keywords = append(c.keywords, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		for _, p := range e.Patterns {
			c.patterns = append(c.patterns, regexp.MustCompile(`(?i)`+p))
		}
		d.categories = append(d.categories, c)
		if len(e.Responses) > 0 {
			d.responses[e.Name] = e.Responses
		}
	}
	return d
}

// Detect returns the emotion reading for text.
func (d *Detector) Detect(text string) types.EmotionReading {
	reading := types.EmotionReading{Primary: Neutral}
	if strings.TrimSpace(text) == "" {
		return reading
	}

	scores := make([]float64, len(d.categories))
	for i, c := range d.categories {
		for _, re := range c.keywords {
			scores[i] += float64(len(re.FindAllStringIndex(text, -1))) * 0.2 * c.weight
		}
		for _, re := range c.patterns {
			scores[i] += float64(len(re.FindAllStringIndex(text, -1))) * 0.3 * c.weight
		}
	}

	first, second := -1, -1
	var total, valence, arousal float64
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		total += s
		valence += s * d.categories[i].valence
		arousal += s * d.categories[i].arousal
		switch {
		case first < 0 || s > scores[first]:
			second = first
			first = i
		case second < 0 || s > scores[second]:
			second = i
		}
	}
	if first < 0 {
		return reading
	}

	reading.Primary = d.categories[first].name
	if second >= 0 {
		reading.Secondary = d.categories[second].name
	}
	reading.Intensity = Clamp01(scores[first] / 2)
	reading.Valence = Clamp(valence/total, -1, 1)
	reading.Arousal = Clamp01(arousal / total)
	return reading
}

// Templates returns the fallback reply templates for an emotion.
func (d *Detector) Templates(emotion string) []string {
	if t, ok := d.responses[emotion]; ok {
		return t
	}
	return d.neutral
}
