package rag

import (
	"context"
	"fmt"

	"github.com/podwise/podwise/internal/embedder"
	"github.com/podwise/podwise/internal/vectorstore"
)

// retrieveTopK is how many hits each strategy contributes before fusion.
const retrieveTopK = 10

// DenseRetriever embeds the active query and runs k-NN over the dense
// vectors.
type DenseRetriever struct {
	embedder embedder.Embedder
	store    vectorstore.Store
}

// NewDenseRetriever builds the dense strategy.
func NewDenseRetriever(emb embedder.Embedder, store vectorstore.Store) *DenseRetriever {
	return &DenseRetriever{embedder: emb, store: store}
}

func (r *DenseRetriever) Name() string { return "dense" }

func (r *DenseRetriever) Retrieve(ctx context.Context, q *QueryContext) ([]vectorstore.ScoredChunk, error) {
	vector, err := r.embedder.Embed(ctx, q.Active())
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if embedder.IsZero(vector) {
		return nil, nil
	}
	return r.store.Search(ctx, vector, q.Filter(), retrieveTopK)
}

// SparseRetriever matches query terms against the term index of chunk text
// and tags.
type SparseRetriever struct {
	vectorizer *vectorstore.SparseVectorizer
	store      vectorstore.Store
}

// NewSparseRetriever builds the term-based strategy.
func NewSparseRetriever(store vectorstore.Store) *SparseRetriever {
	return &SparseRetriever{vectorizer: vectorstore.NewSparseVectorizer(), store: store}
}

func (r *SparseRetriever) Name() string { return "sparse" }

func (r *SparseRetriever) Retrieve(ctx context.Context, q *QueryContext) ([]vectorstore.ScoredChunk, error) {
	sv := r.vectorizer.Vectorize(q.Active())
	if sv == nil {
		return nil, nil
	}
	return r.store.SparseSearch(ctx, sv, q.Filter(), retrieveTopK)
}

// SemanticRetriever narrows dense search to chunks carrying the query's
// primary taxonomy tag, surfacing topical matches the raw embedding may
// rank low.
type SemanticRetriever struct {
	embedder embedder.Embedder
	store    vectorstore.Store
}

// NewSemanticRetriever builds the tag-scoped strategy.
func NewSemanticRetriever(emb embedder.Embedder, store vectorstore.Store) *SemanticRetriever {
	return &SemanticRetriever{embedder: emb, store: store}
}

func (r *SemanticRetriever) Name() string { return "semantic" }

func (r *SemanticRetriever) Retrieve(ctx context.Context, q *QueryContext) ([]vectorstore.ScoredChunk, error) {
	if len(q.Tags) == 0 {
		return nil, nil
	}
	vector, err := r.embedder.Embed(ctx, q.Active())
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if embedder.IsZero(vector) {
		return nil, nil
	}

	f := q.Filter()
	f.TagSubstring = q.Tags[0]
	return r.store.Search(ctx, vector, f, retrieveTopK)
}

var (
	_ Retriever = (*DenseRetriever)(nil)
	_ Retriever = (*SparseRetriever)(nil)
	_ Retriever = (*SemanticRetriever)(nil)
)
