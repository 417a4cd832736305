package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitVector(axis int) []float32 {
	v := make([]float32, EmbeddingDim)
	v[axis] = 1
	return v
}

func validRow(id string) ChunkRow {
	return ChunkRow{
		ChunkID:      id,
		ChunkText:    "聊聊投資理財的基本觀念",
		Embedding:    unitVector(0),
		EpisodeID:    11,
		PodcastID:    1321,
		PodcastName:  "財經M平方",
		EpisodeTitle: "EP123 投資理財",
		Category:     "商業",
		Tags:         []string{"投資理財"},
	}
}

func TestWriter_BoundsEnforced(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store, 10, nil)

	row := validRow("c1")
	row.PodcastName = strings.Repeat("名", 300)
	row.Category = strings.Repeat("c", 100)
	row.Language = strings.Repeat("l", 40)
	row.Tags = []string{"a", "b", "c", "d", "e"}

	require.NoError(t, w.Add(context.Background(), row))
	require.NoError(t, w.Flush(context.Background()))

	rows := store.Rows()
	require.Len(t, rows, 1)
	got := rows[0]
	assert.LessOrEqual(t, len([]rune(got.PodcastName)), MaxNameLen)
	assert.LessOrEqual(t, len([]rune(got.Category)), MaxShortLen)
	assert.LessOrEqual(t, len([]rune(got.Language)), MaxLanguageLen)
	assert.LessOrEqual(t, len(got.Tags), MaxTagsPerChunk)
	assert.Len(t, got.Embedding, EmbeddingDim)
}

func TestWriter_DropsInvalidRows(t *testing.T) {
	store := NewMemoryStore()
	var journaled []error
	w := NewWriter(store, 10, func(err error) { journaled = append(journaled, err) })

	empty := validRow("c-empty")
	empty.ChunkText = "   "
	badDim := validRow("c-dim")
	badDim.Embedding = []float32{1, 2, 3}

	require.NoError(t, w.Add(context.Background(), empty))
	require.NoError(t, w.Add(context.Background(), badDim))
	require.NoError(t, w.Add(context.Background(), validRow("c-ok")))
	require.NoError(t, w.Flush(context.Background()))

	assert.Len(t, journaled, 2)
	assert.Equal(t, 1, w.Written())
	require.Len(t, store.Rows(), 1)
	assert.Equal(t, "c-ok", store.Rows()[0].ChunkID)
}

func TestWriter_FlushesAtBatchSize(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store, 2, nil)

	require.NoError(t, w.Add(context.Background(), validRow("c1")))
	require.Len(t, store.Rows(), 0, "first add must stay buffered")
	require.NoError(t, w.Add(context.Background(), validRow("c2")))
	assert.Len(t, store.Rows(), 2, "batch boundary must flush")
}

func TestUpsert_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	w := NewWriter(store, 10, nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, w.Add(context.Background(), validRow("same-id")))
		require.NoError(t, w.Flush(context.Background()))
	}

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n, "re-ingesting the same chunk_id must not duplicate")
}

func TestMemoryStore_FilterAndOrdering(t *testing.T) {
	store := NewMemoryStore()
	rows := []ChunkRow{validRow("a"), validRow("b"), validRow("c")}
	rows[1].Category = "教育"
	rows[2].Embedding = unitVector(1)
	require.NoError(t, store.Upsert(context.Background(), rows))

	hits, err := store.Search(context.Background(), unitVector(0), Filter{Category: "商業"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Row.ChunkID)

	// Equal scores break ties by chunk ID for deterministic output.
	rows[2].Embedding = unitVector(0)
	require.NoError(t, store.Upsert(context.Background(), rows[2:]))
	hits, err = store.Search(context.Background(), unitVector(0), Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Row.ChunkID)
	assert.Equal(t, "b", hits[1].Row.ChunkID)
	assert.Equal(t, "c", hits[2].Row.ChunkID)
}

func TestSparseVectorizer(t *testing.T) {
	v := NewSparseVectorizer()

	sv := v.Vectorize("投資理財 podcast 推薦")
	require.NotNil(t, sv)
	assert.Equal(t, len(sv.Indices), len(sv.Values))
	for i := 1; i < len(sv.Indices); i++ {
		assert.Less(t, sv.Indices[i-1], sv.Indices[i], "indices must be sorted")
	}

	assert.Nil(t, v.Vectorize("   "), "no tokens yields nil")

	// Same text, same vector.
	again := v.Vectorize("投資理財 podcast 推薦")
	assert.Equal(t, sv.Indices, again.Indices)
	assert.Equal(t, sv.Values, again.Values)
}
