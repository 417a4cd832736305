package rag

import (
	"context"
	"log/slog"
	"strings"

	"github.com/podwise/podwise/internal/vectorstore"
)

// augmentBoost lifts every successfully augmented candidate.
const augmentBoost = 1.1

// AugmentLevel enriches each candidate in place: the adjacent chunks of the
// same episode, the podcast's category tags, and the episode title are
// folded into the candidate's content. The candidate set itself never grows
// or shrinks here; re-ordering is the next level's job.
type AugmentLevel struct {
	store     vectorstore.Store
	threshold float64
}

// NewAugmentLevel builds the context augmentation level.
func NewAugmentLevel(store vectorstore.Store, threshold float64) *AugmentLevel {
	return &AugmentLevel{store: store, threshold: threshold}
}

func (l *AugmentLevel) Name() string       { return "L3" }
func (l *AugmentLevel) Threshold() float64 { return l.threshold }

func (l *AugmentLevel) Run(ctx context.Context, s *State) (float64, error) {
	if len(s.Hits) == 0 {
		return 0, nil
	}

	augmented := 0
	for i := range s.Hits {
		hit := &s.Hits[i]
		prev, next, err := l.store.Neighbors(ctx, hit.Row.EpisodeID, hit.Row.ChunkIndex)
		if err != nil {
			slog.Warn("neighbor lookup failed",
				"episode_id", hit.Row.EpisodeID, "chunk_index", hit.Row.ChunkIndex, "error", err)
			continue
		}
		hit.Row.ChunkText = augmentedContent(hit.Row, prev, next)
		hit.Score = clampScore(hit.Score * augmentBoost)
		augmented++
	}

	return float64(augmented) / float64(len(s.Hits)), nil
}

// augmentedContent concatenates the candidate's enrichment: episode title,
// category tags, and the neighboring chunk texts around the original.
func augmentedContent(row vectorstore.ChunkRow, prev, next *vectorstore.ChunkRow) string {
	var parts []string
	if row.EpisodeTitle != "" {
		parts = append(parts, "單集:"+row.EpisodeTitle)
	}
	if row.Category != "" || len(row.Tags) > 0 {
		label := row.Category
		if len(row.Tags) > 0 {
			if label != "" {
				label += "/"
			}
			label += strings.Join(row.Tags, "、")
		}
		parts = append(parts, "類別:"+label)
	}
	if prev != nil && prev.ChunkText != "" {
		parts = append(parts, "前文:"+prev.ChunkText)
	}
	parts = append(parts, row.ChunkText)
	if next != nil && next.ChunkText != "" {
		parts = append(parts, "後文:"+next.ChunkText)
	}
	return strings.Join(parts, "\n")
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

var _ Level = (*AugmentLevel)(nil)
