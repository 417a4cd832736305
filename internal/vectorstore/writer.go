package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/podwise/podwise/internal/errs"
)

// JournalFunc receives the tagged error for every chunk the writer had to
// drop or failed to write. The batch itself is never rolled back.
type JournalFunc func(err error)

// Writer buffers chunk rows, coerces every field to the schema bounds, and
// flushes in bounded batches. Partial failures journal the offending chunk
// and continue.
type Writer struct {
	store     Store
	batchSize int
	journal   JournalFunc

	pending []ChunkRow
	written int
}

// NewWriter creates a writer flushing every batchSize rows. journal may be
// nil, in which case failures are only logged.
func NewWriter(store Store, batchSize int, journal JournalFunc) *Writer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if journal == nil {
		journal = func(err error) {
			slog.Warn("vector store write failure", "error", err)
		}
	}
	return &Writer{store: store, batchSize: batchSize, journal: journal}
}

// Add coerces and buffers one row, flushing when the batch fills. Rows that
// cannot be made valid (empty text, wrong embedding dimension) are dropped
// and journaled.
func (w *Writer) Add(ctx context.Context, row ChunkRow) error {
	coerced, err := coerceRow(row)
	if err != nil {
		w.journal(err)
		return nil
	}

	w.pending = append(w.pending, *coerced)
	if len(w.pending) >= w.batchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered rows and asks the store to persist. On a batch
// error the writer retries row by row so one bad chunk cannot poison its
// neighbors.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := w.pending
	w.pending = nil

	if err := w.store.Upsert(ctx, batch); err != nil {
		for _, row := range batch {
			if rowErr := w.store.Upsert(ctx, []ChunkRow{row}); rowErr != nil {
				w.journal(errs.E(errs.KindResource, "vector_write",
					fmt.Sprintf("failed to upsert chunk %s", row.ChunkID), rowErr))
				continue
			}
			w.written++
		}
	} else {
		w.written += len(batch)
	}

	if err := w.store.Flush(ctx); err != nil {
		return errs.E(errs.KindResource, "vector_flush", "failed to flush vector store", err)
	}
	return nil
}

// Written returns the number of rows successfully upserted so far.
func (w *Writer) Written() int { return w.written }

// coerceRow enforces the column bounds: truncate strings, cap tags,
// and validate the embedding. String truncation never rejects; only an
// empty text or a wrong-dimension embedding drops the row.
func coerceRow(row ChunkRow) (*ChunkRow, error) {
	row.ChunkText = strings.TrimSpace(row.ChunkText)
	if row.ChunkText == "" {
		return nil, errs.E(errs.KindData, "vector_write",
			fmt.Sprintf("chunk %s empty after cleaning", row.ChunkID), nil)
	}
	if len(row.Embedding) != EmbeddingDim {
		return nil, errs.E(errs.KindData, "vector_write",
			fmt.Sprintf("chunk %s embedding dimension %d, want %d",
				row.ChunkID, len(row.Embedding), EmbeddingDim), nil)
	}

	row.ChunkID = truncate(row.ChunkID, MaxChunkIDLen)
	row.ChunkText = truncate(row.ChunkText, MaxChunkTextLen)
	row.PodcastName = truncate(row.PodcastName, MaxNameLen)
	row.EpisodeTitle = truncate(row.EpisodeTitle, MaxNameLen)
	row.Author = truncate(row.Author, MaxNameLen)
	row.Category = truncate(row.Category, MaxShortLen)
	row.Duration = truncate(row.Duration, MaxNameLen)
	row.PublishedDate = truncate(row.PublishedDate, MaxShortLen)
	row.Language = truncate(row.Language, MaxLanguageLen)
	row.CreatedAt = truncate(row.CreatedAt, MaxShortLen)
	row.SourceModel = truncate(row.SourceModel, MaxShortLen)

	if len(row.Tags) > MaxTagsPerChunk {
		row.Tags = row.Tags[:MaxTagsPerChunk]
	}
	for row.TagsJoined() != "" && len(row.TagsJoined()) > MaxTagsLen {
		row.Tags = row.Tags[:len(row.Tags)-1]
	}
	return &row, nil
}

// truncate bounds s to max runes, replacing the tail with "..." when cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
