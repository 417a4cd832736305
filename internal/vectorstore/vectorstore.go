// Package vectorstore provides the vector index holding podcast transcript
// chunks: schema, similarity search with scalar filters, and the batched
// writer used by ingestion.
package vectorstore

import (
	"context"
	"strings"
)

// Column width bounds for ChunkRow string fields.
const (
	MaxChunkIDLen   = 64
	MaxChunkTextLen = 1024
	MaxNameLen      = 255
	MaxShortLen     = 64
	MaxLanguageLen  = 16
	MaxTagsLen      = 1024
	MaxTagsPerChunk = 3

	// EmbeddingDim is the fixed dimensionality of the index.
	EmbeddingDim = 1024
)

// ChunkRow is one row of the vector index: a bounded transcript slice plus
// provenance and processing metadata.
type ChunkRow struct {
	// Identity
	ChunkID    string
	ChunkIndex int

	// Content
	ChunkText string
	Embedding []float32

	// Provenance
	EpisodeID     int64
	PodcastID     int64
	PodcastName   string
	EpisodeTitle  string
	Author        string
	Category      string
	Duration      string
	PublishedDate string
	AppleRating   int
	Language      string

	// Processing metadata
	CreatedAt   string
	SourceModel string
	Tags        []string

	// ZeroVector marks rows whose embedding failed; they stay indexed for
	// metadata lookup but are excluded from similarity rankings.
	ZeroVector bool
}

// TagsJoined renders the tag list as the comma-joined column value.
func (r *ChunkRow) TagsJoined() string {
	return strings.Join(r.Tags, ",")
}

// PrimaryTag returns the first assigned tag, or "".
func (r *ChunkRow) PrimaryTag() string {
	if len(r.Tags) == 0 {
		return ""
	}
	return r.Tags[0]
}

// Filter narrows a search with scalar conditions. Zero values mean "no
// constraint".
type Filter struct {
	Category     string
	PodcastID    int64
	Language     string
	TagSubstring string

	// ExcludeZeroVectors drops rows flagged by the embedding adapter.
	ExcludeZeroVectors bool
}

// Empty reports whether the filter constrains anything.
func (f Filter) Empty() bool {
	return f.Category == "" && f.PodcastID == 0 && f.Language == "" &&
		f.TagSubstring == "" && !f.ExcludeZeroVectors
}

// ScoredChunk is a search hit with its similarity score.
type ScoredChunk struct {
	Row   ChunkRow
	Score float64
}

// Store is the vector index capability required by ingestion and retrieval:
// ANN search over a cosine space, scalar filters, idempotent upsert keyed
// by ChunkID, flush, drop, and entity count.
type Store interface {
	// EnsureCollection creates the collection if absent.
	EnsureCollection(ctx context.Context, dim int) error

	// Upsert writes rows idempotently: re-ingesting a ChunkID replaces
	// the previous row.
	Upsert(ctx context.Context, rows []ChunkRow) error

	// Search performs dense k-NN with optional scalar filters.
	Search(ctx context.Context, vector []float32, f Filter, topK int) ([]ScoredChunk, error)

	// SparseSearch performs term-based retrieval over chunk text and tags.
	SparseSearch(ctx context.Context, sv *SparseVector, f Filter, topK int) ([]ScoredChunk, error)

	// Neighbors returns the chunks immediately before and after the given
	// position inside one episode. Either may be nil at the edges.
	Neighbors(ctx context.Context, episodeID int64, chunkIndex int) (prev, next *ChunkRow, err error)

	// Count returns the number of indexed rows.
	Count(ctx context.Context) (uint64, error)

	// Flush persists outstanding writes.
	Flush(ctx context.Context) error

	// Drop deletes the collection.
	Drop(ctx context.Context) error
}
