package rag

import (
	"context"

	"github.com/podwise/podwise/internal/reranker"
)

// RerankLevel re-orders the augmented hits with the multi-factor reranker
// and keeps the diversity-bounded selection.
type RerankLevel struct {
	reranker  *reranker.Reranker
	threshold float64
}

// NewRerankLevel builds the precision re-ranking level.
func NewRerankLevel(r *reranker.Reranker, threshold float64) *RerankLevel {
	return &RerankLevel{reranker: r, threshold: threshold}
}

func (l *RerankLevel) Name() string       { return "L4" }
func (l *RerankLevel) Threshold() float64 { return l.threshold }

func (l *RerankLevel) Run(_ context.Context, s *State) (float64, error) {
	if len(s.Hits) == 0 {
		return 0, nil
	}

	selected := l.reranker.Rerank(s.Hits)
	s.Reranked = selected
	return reranker.Confidence(selected), nil
}

var _ Level = (*RerankLevel)(nil)
