// Package transcripts reads the source document store holding raw podcast
// transcripts, organized as one collection per feed named RSS_<podcast_id>.
package transcripts

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CollectionPrefix names transcript collections: RSS_<podcast_id>.
const CollectionPrefix = "RSS_"

// SourceChunk is a pre-chunked transcript slice carried by some documents.
type SourceChunk struct {
	ChunkText    string   `bson:"chunk_text"`
	ChunkIndex   int      `bson:"chunk_index"`
	EnhancedTags []string `bson:"enhanced_tags,omitempty"`
}

// Document is one episode transcript in the source store. Either the raw
// Transcript or the pre-chunked Chunks may be populated; ingestion prefers
// the raw transcript when both are present.
type Document struct {
	File       string        `bson:"file"`
	Transcript string        `bson:"transcript,omitempty"`
	Chunks     []SourceChunk `bson:"chunks,omitempty"`
}

// Text returns the raw transcript when present, otherwise the pre-chunked
// texts rejoined in chunk order.
func (d *Document) Text() string {
	if strings.TrimSpace(d.Transcript) != "" {
		return d.Transcript
	}
	chunks := make([]SourceChunk, len(d.Chunks))
	copy(chunks, d.Chunks)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.ChunkText); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Store abstracts the document store so ingestion can be tested without a
// live MongoDB.
type Store interface {
	// Collections lists transcript collection names (RSS_*), sorted.
	Collections(ctx context.Context) ([]string, error)

	// Documents returns all documents of one collection.
	Documents(ctx context.Context, collection string) ([]Document, error)
}

// PodcastID extracts the numeric podcast ID from a collection name.
func PodcastID(collection string) (int64, error) {
	if !strings.HasPrefix(collection, CollectionPrefix) {
		return 0, fmt.Errorf("collection %q is not a transcript collection", collection)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(collection, CollectionPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("collection %q has no numeric podcast id: %w", collection, err)
	}
	return id, nil
}
