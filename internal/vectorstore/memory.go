package vectorstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It honors the same contract as the Qdrant store: idempotent upsert by
// ChunkID, cosine dense search, term-overlap sparse search, scalar filters.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]ChunkRow
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]ChunkRow)}
}

func (m *MemoryStore) EnsureCollection(_ context.Context, _ int) error { return nil }

func (m *MemoryStore) Upsert(_ context.Context, rows []ChunkRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		m.rows[row.ChunkID] = row
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float32, f Filter, topK int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []ScoredChunk
	for _, row := range m.rows {
		if !matchFilter(row, f) {
			continue
		}
		var dot float64
		for i := range vector {
			if i < len(row.Embedding) {
				dot += float64(vector[i]) * float64(row.Embedding[i])
			}
		}
		score := CosineFromDot(dot)
		if score <= 0 {
			continue
		}
		hits = append(hits, ScoredChunk{Row: row, Score: score})
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryStore) SparseSearch(_ context.Context, sv *SparseVector, f Filter, topK int) ([]ScoredChunk, error) {
	if sv == nil {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := make(map[uint32]float64, len(sv.Indices))
	for i, idx := range sv.Indices {
		query[idx] = float64(sv.Values[i])
	}

	vectorizer := NewSparseVectorizer()
	var hits []ScoredChunk
	for _, row := range m.rows {
		if !matchFilter(row, f) {
			continue
		}
		doc := vectorizer.Vectorize(row.ChunkText + " " + row.TagsJoined())
		if doc == nil {
			continue
		}
		var raw float64
		for i, idx := range doc.Indices {
			if qv, ok := query[idx]; ok {
				raw += qv * float64(doc.Values[i])
			}
		}
		if raw <= 0 {
			continue
		}
		hits = append(hits, ScoredChunk{Row: row, Score: NormalizeScore(raw)})
	}
	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryStore) Neighbors(_ context.Context, episodeID int64, chunkIndex int) (prev, next *ChunkRow, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, row := range m.rows {
		if row.EpisodeID != episodeID {
			continue
		}
		r := row
		switch r.ChunkIndex {
		case chunkIndex - 1:
			prev = &r
		case chunkIndex + 1:
			next = &r
		}
	}
	return prev, next, nil
}

func (m *MemoryStore) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.rows)), nil
}

func (m *MemoryStore) Flush(_ context.Context) error { return nil }

func (m *MemoryStore) Drop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = make(map[string]ChunkRow)
	return nil
}

// Rows returns a snapshot of all stored rows, sorted by ChunkID.
func (m *MemoryStore) Rows() []ChunkRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ChunkRow, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkID < out[j].ChunkID })
	return out
}

func matchFilter(row ChunkRow, f Filter) bool {
	if f.Category != "" && row.Category != f.Category {
		return false
	}
	if f.PodcastID != 0 && row.PodcastID != f.PodcastID {
		return false
	}
	if f.Language != "" && row.Language != f.Language {
		return false
	}
	if f.TagSubstring != "" && !strings.Contains(row.TagsJoined(), f.TagSubstring) {
		return false
	}
	if f.ExcludeZeroVectors && row.ZeroVector {
		return false
	}
	return true
}

// sortHits orders deterministically: score descending, then chunk ID.
func sortHits(hits []ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row.ChunkID < hits[j].Row.ChunkID
	})
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
