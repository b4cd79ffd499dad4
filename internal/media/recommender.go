package media

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/easeaico/companion/internal/types"
)

const (
	decayPerDay       = 0.1
	similarityWeight  = 1.5
	categoryBonus     = 0.5
	tagBonus          = 0.3
	interactionsLimit = 100
)

var interactionWeights = map[string]float64{
	types.InteractionView:   1,
	types.InteractionPlay:   2,
	types.InteractionShare:  3,
	types.InteractionDelete: -2,
}

// Recommender ranks media for one conversation from its interaction history.
type Recommender struct {
	analyzer *Analyzer
	history  []types.MediaInteraction
}

// NewRecommender returns a Recommender with no history.
func NewRecommender(analyzer *Analyzer) *Recommender {
	return &Recommender{analyzer: analyzer}
}

// RecordInteraction adds an event to the history, newest first.
func (r *Recommender) RecordInteraction(in types.MediaInteraction) error {
	if in.MediaID == "" {
		return types.NewValidationError("media id", "cannot be empty")
	}
	if _, ok := interactionWeights[in.Kind]; !ok {
		return types.NewValidationError("interaction kind", "unsupported kind "+in.Kind)
	}
	r.history = append([]types.MediaInteraction{in}, r.history...)
	if len(r.history) > interactionsLimit {
		r.history = r.history[:interactionsLimit]
	}
	return nil
}

// History returns the interaction history, newest first.
func (r *Recommender) History() []types.MediaInteraction {
	return append([]types.MediaInteraction(nil), r.history...)
}

// Load replaces the history. Events are sorted newest first and capped.
func (r *Recommender) Load(history []types.MediaInteraction) {
	r.history = append([]types.MediaInteraction(nil), history...)
	sort.SliceStable(r.history, func(i, j int) bool { return r.history[i].Timestamp.After(r.history[j].Timestamp) })
	if len(r.history) > interactionsLimit {
		r.history = r.history[:interactionsLimit]
	}
}

// Recommend scores items against the recent turns and returns the best limit items.
func (r *Recommender) Recommend(ctx context.Context, items []types.MediaItem, recent []types.Turn, limit int, now time.Time) ([]types.ScoredMedia, error) {
	if limit <= 0 || len(items) == 0 {
		return nil, nil
	}
	profile, err := r.analyzer.Context(ctx, recent)
	if err != nil {
		return nil, err
	}
	ctxCategories := toSet(profile.Categories)
	ctxTags := toSet(profile.Tags)

	scored := make([]types.ScoredMedia, 0, len(items))
	for _, item := range items {
		fp, err := r.analyzer.Analyze(ctx, item)
		if err != nil {
			return nil, err
		}
		interaction, last := r.interactionScore(item.ID, now)

		bonus := 0.0
		for _, c := range fp.Categories {
			if ctxCategories[c] {
				bonus += categoryBonus
			}
		}
		for _, t := range fp.Tags {
			if ctxTags[t] {
				bonus += tagBonus
			}
		}

		base := interaction + Cosine(fp.Vector, profile.Vector)*similarityWeight + bonus
		recency := 1.0
		if interaction > 0 && !last.IsZero() {
			recency = math.Exp(-decayPerDay * days(now.Sub(last)))
		}
		scored = append(scored, types.ScoredMedia{Item: item, Score: base * recency})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// interactionScore returns the time-decayed interaction weight of a media item and
// the time of its latest interaction.
func (r *Recommender) interactionScore(mediaID string, now time.Time) (float64, time.Time) {
	var score float64
	var last time.Time
	for _, in := range r.history {
		if in.MediaID != mediaID {
			continue
		}
		score += interactionWeights[in.Kind] * math.Exp(-decayPerDay*days(now.Sub(in.Timestamp)))
		if in.Timestamp.After(last) {
			last = in.Timestamp
		}
	}
	return score, last
}

func days(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Hours() / 24
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
