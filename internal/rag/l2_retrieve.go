package rag

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/podwise/podwise/internal/vectorstore"
)

// fusedTopK bounds the fused hit list handed to the later levels.
const fusedTopK = 10

// RetrieveLevel runs the retrieval strategies in parallel and fuses their
// hits: union, deduplicated by chunk ID keeping the best score, ordered
// score descending with chunk ID as the tie break.
type RetrieveLevel struct {
	retrievers []Retriever
	threshold  float64
}

// NewRetrieveLevel builds the hybrid search level.
func NewRetrieveLevel(retrievers []Retriever, threshold float64) *RetrieveLevel {
	return &RetrieveLevel{retrievers: retrievers, threshold: threshold}
}

func (l *RetrieveLevel) Name() string       { return "L2" }
func (l *RetrieveLevel) Threshold() float64 { return l.threshold }

func (l *RetrieveLevel) Run(ctx context.Context, s *State) (float64, error) {
	retrievers := l.retrievers
	if !s.Query.Hybrid && len(retrievers) > 1 {
		// Hybrid search disabled: the primary (dense) strategy runs alone.
		retrievers = retrievers[:1]
	}

	var mu sync.Mutex
	best := map[string]vectorstore.ScoredChunk{}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range retrievers {
		r := r
		g.Go(func() error {
			hits, err := r.Retrieve(gctx, &s.Query)
			if err != nil {
				// One strategy failing degrades recall, not the request.
				slog.Warn("retrieval strategy failed", "strategy", r.Name(), "error", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, hit := range hits {
				if prev, ok := best[hit.Row.ChunkID]; !ok || hit.Score > prev.Score {
					best[hit.Row.ChunkID] = hit
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	fused := make([]vectorstore.ScoredChunk, 0, len(best))
	for _, hit := range best {
		fused = append(fused, hit)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return fused[i].Row.ChunkID < fused[j].Row.ChunkID
	})
	if len(fused) > fusedTopK {
		fused = fused[:fusedTopK]
	}

	s.Hits = fused
	return fusionConfidence(fused), nil
}

// fusionConfidence blends hit quality with hit volume: the mean score
// weighted 0.7 plus a volume term saturating at five hits weighted 0.3.
func fusionConfidence(hits []vectorstore.ScoredChunk) float64 {
	if len(hits) == 0 {
		return 0
	}
	sum := 0.0
	for _, h := range hits {
		sum += h.Score
	}
	mean := sum / float64(len(hits))

	volume := float64(len(hits)) / 5
	if volume > 1 {
		volume = 1
	}
	return 0.7*mean + 0.3*volume
}

var _ Level = (*RetrieveLevel)(nil)
