// Package reranker re-orders retrieval hits with a deterministic
// multi-factor score, then applies a diversity pass so one topic cannot
// monopolize the final context window.
package reranker

import (
	"sort"
	"strings"
	"time"

	"github.com/podwise/podwise/internal/vectorstore"
)

// Weights are the factor contributions to the composite score. They sum to
// 1 in the default configuration.
type Weights struct {
	Relevance float64
	Freshness float64
	Authority float64
	Diversity float64
	Novelty   float64
}

// DefaultWeights weighs the carried retrieval score heaviest, then episode
// freshness and source authority, then the topical spread signals.
func DefaultWeights() Weights {
	return Weights{
		Relevance: 0.4,
		Freshness: 0.2,
		Authority: 0.2,
		Diversity: 0.1,
		Novelty:   0.1,
	}
}

// Scored is a hit with its composite score.
type Scored struct {
	Row   vectorstore.ChunkRow
	Score float64
}

const (
	// maxSelected bounds the reranked output.
	maxSelected = 5

	// maxPerPrimaryTag bounds hits sharing a primary tag in the output.
	maxPerPrimaryTag = 3

	// maxRating is the ceiling of the source rating scale.
	maxRating = 5

	// freshnessWindowDays is the linear decay window from the published
	// date to a freshness of zero.
	freshnessWindowDays = 365

	// diversityPenalty discounts a candidate each time a hit sharing its
	// primary tag is selected ahead of it.
	diversityPenalty = 0.8

	// scoreEpsilon is the spacing below which two same-topic candidates
	// count as indistinguishable and must not sit next to each other.
	scoreEpsilon = 0.01
)

// Reranker computes composite scores. Stateless and safe for concurrent use.
type Reranker struct {
	weights Weights
	now     func() time.Time
}

// New creates a reranker. Zero weights fall back to the defaults.
func New(weights Weights) *Reranker {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Reranker{weights: weights, now: time.Now}
}

// Rerank greedily selects up to maxSelected hits by composite score. Each
// selection discounts the remaining hits sharing its primary tag, a primary
// tag appears at most maxPerPrimaryTag times, and two hits sharing a primary
// tag within scoreEpsilon of each other never end up adjacent.
func (r *Reranker) Rerank(hits []vectorstore.ScoredChunk) []Scored {
	if len(hits) == 0 {
		return nil
	}

	tagCount := map[string]int{}
	for _, hit := range hits {
		if tag := hit.Row.PrimaryTag(); tag != "" {
			tagCount[tag]++
		}
	}

	remaining := make([]Scored, 0, len(hits))
	for _, hit := range hits {
		remaining = append(remaining, Scored{
			Row:   hit.Row,
			Score: r.composite(hit, tagCount),
		})
	}

	perTag := map[string]int{}
	selected := make([]Scored, 0, maxSelected)
	for len(selected) < maxSelected && len(remaining) > 0 {
		sort.Slice(remaining, func(i, j int) bool {
			if remaining[i].Score != remaining[j].Score {
				return remaining[i].Score > remaining[j].Score
			}
			return remaining[i].Row.ChunkID < remaining[j].Row.ChunkID
		})

		picked := -1
		for i, cand := range remaining {
			tag := cand.Row.PrimaryTag()
			if tag != "" && perTag[tag] >= maxPerPrimaryTag {
				continue
			}
			if tag != "" && len(selected) > 0 {
				last := selected[len(selected)-1]
				if last.Row.PrimaryTag() == tag && abs(last.Score-cand.Score) < scoreEpsilon {
					continue
				}
			}
			picked = i
			break
		}
		if picked == -1 {
			break
		}

		choice := remaining[picked]
		selected = append(selected, choice)
		remaining = append(remaining[:picked], remaining[picked+1:]...)

		tag := choice.Row.PrimaryTag()
		if tag == "" {
			continue
		}
		perTag[tag]++
		for i := range remaining {
			if remaining[i].Row.PrimaryTag() == tag {
				remaining[i].Score *= diversityPenalty
			}
		}
	}
	return selected
}

// Confidence summarizes a selection as mean score discounted by its spread.
func Confidence(scored []Scored) float64 {
	if len(scored) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scored {
		sum += s.Score
	}
	mean := sum / float64(len(scored))

	variance := 0.0
	for _, s := range scored {
		d := s.Score - mean
		variance += d * d
	}
	variance /= float64(len(scored))

	return clamp01(mean * (1 - variance))
}

// composite blends the per-hit factors. Diversity starts at full weight and
// is applied as the greedy selection penalty in Rerank.
func (r *Reranker) composite(hit vectorstore.ScoredChunk, tagCount map[string]int) float64 {
	w := r.weights
	score := w.Relevance*clamp01(hit.Score) +
		w.Freshness*r.freshness(hit.Row.PublishedDate) +
		w.Authority*authority(hit.Row.AppleRating) +
		w.Diversity +
		w.Novelty*novelty(hit.Row.PrimaryTag(), tagCount)
	return clamp01(score)
}

// freshness decays linearly over the freshness window. Unknown or
// unparseable dates score zero rather than being penalized further.
func (r *Reranker) freshness(published string) float64 {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(published))
	if err != nil {
		return 0
	}
	age := r.now().Sub(t)
	if age < 0 {
		return 1
	}
	days := age.Hours() / 24
	return clamp01(1 - days/freshnessWindowDays)
}

func authority(rating int) float64 {
	if rating <= 0 {
		return 0
	}
	return clamp01(float64(rating) / maxRating)
}

// novelty is the inverse frequency of the hit's primary tag among the
// working set: rare topics score high, dominant ones low.
func novelty(tag string, tagCount map[string]int) float64 {
	if tag == "" {
		return 1
	}
	n := tagCount[tag]
	if n <= 1 {
		return 1
	}
	return 1 / float64(n)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
