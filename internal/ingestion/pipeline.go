package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/podwise/podwise/internal/embedder"
	"github.com/podwise/podwise/internal/errs"
	"github.com/podwise/podwise/internal/metadata"
	"github.com/podwise/podwise/internal/taxonomy"
	"github.com/podwise/podwise/internal/transcripts"
	"github.com/podwise/podwise/internal/vectorstore"
)

// DocumentProcessor runs one transcript document through the full chain:
// clean, chunk, tag, embed, resolve metadata, write. A document failure
// never aborts the run; it is journaled and the next document proceeds.
type DocumentProcessor struct {
	cleaner   *Cleaner
	chunker   *Chunker
	registry  *taxonomy.Registry
	embedder  embedder.Embedder
	resolver  *metadata.Resolver
	store     vectorstore.Store
	journal   *Journal
	batchSize int
}

// NewDocumentProcessor wires the stages together.
func NewDocumentProcessor(
	cleaner *Cleaner,
	chunker *Chunker,
	registry *taxonomy.Registry,
	emb embedder.Embedder,
	resolver *metadata.Resolver,
	store vectorstore.Store,
	journal *Journal,
	batchSize int,
) *DocumentProcessor {
	return &DocumentProcessor{
		cleaner:   cleaner,
		chunker:   chunker,
		registry:  registry,
		embedder:  emb,
		resolver:  resolver,
		store:     store,
		journal:   journal,
		batchSize: batchSize,
	}
}

// Process ingests one document and returns the number of chunks written. A
// document counts as processed only when at least one chunk reached the
// index.
func (p *DocumentProcessor) Process(ctx context.Context, collection string, doc transcripts.Document) (int, error) {
	podcastID, err := transcripts.PodcastID(collection)
	if err != nil {
		return 0, errs.E(errs.KindData, "chunking", "unparseable collection name", err).
			WithSource(collection, doc.File, "")
	}

	title := titleFromFile(doc.File)

	text := p.cleaner.Clean(collection, doc.Text())
	if text == "" {
		return 0, errs.E(errs.KindData, "chunking", "document empty after cleaning", nil).
			WithSource(collection, doc.File, title)
	}
	chunks := p.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, errs.E(errs.KindData, "chunking", "document produced no chunks", nil).
			WithSource(collection, doc.File, title)
	}

	bundle, err := p.resolver.Resolve(ctx, podcastID, title)
	if err != nil {
		return 0, errs.E(errs.KindResource, "metadata", "metadata resolution failed", err).
			WithSource(collection, doc.File, title)
	}
	// Podcast-level attributes must resolve; an episode-level miss still
	// indexes under the podcast fallback with EpisodeID 0.
	if bundle.PodcastName == metadata.UnknownText || bundle.Category == metadata.UnknownText {
		return 0, errs.E(errs.KindData, "metadata",
			fmt.Sprintf("podcast %d has no usable metadata", podcastID), nil).
			WithSource(collection, doc.File, title)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, errs.E(errs.KindResource, "embedding", "embedding batch failed", err).
			WithSource(collection, doc.File, title)
	}
	if len(vectors) != len(chunks) {
		return 0, errs.E(errs.KindInvariant, "embedding",
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil).
			WithSource(collection, doc.File, title)
	}

	w := vectorstore.NewWriter(p.store, p.batchSize, func(err error) {
		var te *errs.Error
		if e, ok := err.(*errs.Error); ok {
			te = e.WithSource(collection, doc.File, title)
		} else {
			te = errs.E(errs.KindResource, "vector_write", "chunk write failed", err).
				WithSource(collection, doc.File, title)
		}
		if jerr := p.journal.AppendError(te); jerr != nil {
			slog.Warn("error journal append failed", "error", jerr)
		}
	})

	createdAt := time.Now().UTC().Format(time.RFC3339)
	for i, chunk := range chunks {
		zero := embedder.IsZero(vectors[i])
		if zero {
			slog.Warn("indexing chunk with zero vector",
				"collection", collection, "file", doc.File, "chunk_index", i)
		}
		row := vectorstore.ChunkRow{
			ChunkID:       chunkID(podcastID, doc.File, i),
			ChunkIndex:    i,
			ChunkText:     chunk,
			Embedding:     vectors[i],
			EpisodeID:     bundle.EpisodeID,
			PodcastID:     bundle.PodcastID,
			PodcastName:   bundle.PodcastName,
			EpisodeTitle:  bundle.EpisodeTitle,
			Author:        bundle.Author,
			Category:      bundle.Category,
			Duration:      bundle.Duration,
			PublishedDate: bundle.PublishedDate,
			AppleRating:   bundle.AppleRating,
			Language:      bundle.Language,
			CreatedAt:     createdAt,
			SourceModel:   p.embedder.ModelName(),
			Tags:          p.registry.Resolve(chunk),
			ZeroVector:    zero,
		}
		if err := w.Add(ctx, row); err != nil {
			return w.Written(), err
		}
	}
	if err := w.Flush(ctx); err != nil {
		return w.Written(), err
	}

	if w.Written() == 0 {
		return 0, errs.E(errs.KindData, "vector_write", "no chunk of the document survived", nil).
			WithSource(collection, doc.File, title)
	}
	return w.Written(), nil
}

// chunkID derives a stable bounded identifier from the document position so
// re-ingesting the same document overwrites its previous rows.
func chunkID(podcastID int64, file string, index int) string {
	sum := sha256.Sum256([]byte(file))
	return fmt.Sprintf("%d_%s_%d", podcastID, hex.EncodeToString(sum[:6]), index)
}

// titleFromFile turns a source file name into an episode title hint.
func titleFromFile(file string) string {
	base := path.Base(file)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
}
