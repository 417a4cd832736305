// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"math"
)

// Embedder defines the interface for text embedding services.
type Embedder interface {
	// Embed generates an embedding vector for a single text input.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple text inputs.
	// Returns a slice of embeddings in the same order as the input texts.
	// A failure on one text yields a zero vector at that position rather
	// than failing the batch; callers detect those with IsZero.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the embedding vectors.
	Dimension() int

	// ModelName returns the name of the embedding model being used.
	ModelName() string
}

// Normalize scales v to unit L2 norm in place and returns it, so cosine
// similarity reduces to a dot product downstream. A zero vector is returned
// unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// IsZero reports whether v is the all-zero sentinel produced for texts that
// failed to embed. Such rows stay in the index for metadata lookup but are
// excluded from similarity rankings.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Zero returns a fresh zero vector of the given dimension.
func Zero(dim int) []float32 {
	return make([]float32, dim)
}
