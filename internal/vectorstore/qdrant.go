package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// CollectionName is the single collection holding all chunk rows.
	CollectionName = "podwise_chunks"

	// Vector field names for hybrid search
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// chunkIDNamespace makes point IDs a deterministic function of ChunkID so
// upserts are idempotent.
var chunkIDNamespace = uuid.MustParse("8d6a1a66-2f0b-4df1-9a73-52c4f8a9b001")

// QdrantStore implements Store using Qdrant.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore creates a new Qdrant vector store client.
// url should be in format "host:port" (e.g., "localhost:6334").
func NewQdrantStore(ctx context.Context, url string) (*QdrantStore, error) {
	host, portStr, err := net.SplitHostPort(url)
	if err != nil {
		// If no port specified, assume default
		host = url
		portStr = "6334"
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant url: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// EnsureCollection creates the chunk collection if it does not exist yet:
// a named dense vector (cosine) plus a named sparse vector with server-side
// IDF weighting.
func (s *QdrantStore) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, CollectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
		SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
			sparseVectorName: {
				Modifier: qdrant.Modifier_Idf.Enum(),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// pointID derives the deterministic point UUID for a chunk.
func pointID(chunkID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(chunkIDNamespace, []byte(chunkID)).String())
}

// Upsert writes rows idempotently. The sparse side indexes chunk text plus
// tags so keyword search covers both.
func (s *QdrantStore) Upsert(ctx context.Context, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}

	vectorizer := NewSparseVectorizer()
	points := make([]*qdrant.PointStruct, len(rows))
	for i, row := range rows {
		vectors := map[string]*qdrant.Vector{
			denseVectorName: {Data: row.Embedding},
		}
		if sv := vectorizer.Vectorize(row.ChunkText + " " + row.TagsJoined()); sv != nil {
			vectors[sparseVectorName] = &qdrant.Vector{
				Indices: &qdrant.SparseIndices{Data: sv.Indices},
				Data:    sv.Values,
			}
		}

		points[i] = &qdrant.PointStruct{
			Id:      pointID(row.ChunkID),
			Payload: rowPayload(&row),
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vectors{
					Vectors: &qdrant.NamedVectors{Vectors: vectors},
				},
			},
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: CollectionName,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// Search performs dense k-NN with optional scalar filters.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, f Filter, topK int) ([]ScoredChunk, error) {
	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQueryDense(vector),
		Using:          qdrant.PtrOf(denseVectorName),
		Filter:         buildFilter(f),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]ScoredChunk, 0, len(response))
	for _, point := range response {
		results = append(results, ScoredChunk{
			Row:   payloadRow(point.Payload),
			Score: CosineFromDot(float64(point.Score)),
		})
	}
	return results, nil
}

// SparseSearch performs keyword retrieval over chunk text and tags.
func (s *QdrantStore) SparseSearch(ctx context.Context, sv *SparseVector, f Filter, topK int) ([]ScoredChunk, error) {
	if sv == nil || len(sv.Indices) == 0 {
		return nil, nil
	}

	response, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuerySparse(sv.Indices, sv.Values),
		Using:          qdrant.PtrOf(sparseVectorName),
		Filter:         buildFilter(f),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sparse search: %w", err)
	}

	results := make([]ScoredChunk, 0, len(response))
	for _, point := range response {
		results = append(results, ScoredChunk{
			Row:   payloadRow(point.Payload),
			Score: NormalizeScore(float64(point.Score)),
		})
	}
	return results, nil
}

// Neighbors returns the chunks adjacent to chunkIndex within one episode.
func (s *QdrantStore) Neighbors(ctx context.Context, episodeID int64, chunkIndex int) (prev, next *ChunkRow, err error) {
	if chunkIndex > 0 {
		prev, err = s.chunkAt(ctx, episodeID, chunkIndex-1)
		if err != nil {
			return nil, nil, err
		}
	}
	next, err = s.chunkAt(ctx, episodeID, chunkIndex+1)
	if err != nil {
		return nil, nil, err
	}
	return prev, next, nil
}

func (s *QdrantStore) chunkAt(ctx context.Context, episodeID int64, chunkIndex int) (*ChunkRow, error) {
	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: CollectionName,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchInt("episode_id", episodeID),
				qdrant.NewMatchInt("chunk_index", int64(chunkIndex)),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll neighbor: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	row := payloadRow(points[0].Payload)
	return &row, nil
}

// Count returns the exact number of indexed rows.
func (s *QdrantStore) Count(ctx context.Context) (uint64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: CollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return n, nil
}

// Flush is satisfied by Wait-ed upserts: writes are durable when Upsert
// returns.
func (s *QdrantStore) Flush(ctx context.Context) error {
	return nil
}

// Drop deletes the collection.
func (s *QdrantStore) Drop(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, CollectionName); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// buildFilter translates the scalar filter into qdrant conditions.
func buildFilter(f Filter) *qdrant.Filter {
	if f.Empty() {
		return nil
	}

	qf := &qdrant.Filter{}
	if f.Category != "" {
		qf.Must = append(qf.Must, qdrant.NewMatch("category", f.Category))
	}
	if f.PodcastID != 0 {
		qf.Must = append(qf.Must, qdrant.NewMatchInt("podcast_id", f.PodcastID))
	}
	if f.Language != "" {
		qf.Must = append(qf.Must, qdrant.NewMatch("language", f.Language))
	}
	if f.TagSubstring != "" {
		qf.Must = append(qf.Must, qdrant.NewMatchText("tags", f.TagSubstring))
	}
	if f.ExcludeZeroVectors {
		qf.MustNot = append(qf.MustNot, qdrant.NewMatchBool("zero_vector", true))
	}
	return qf
}

// rowPayload flattens a chunk row into the qdrant payload.
func rowPayload(row *ChunkRow) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		"chunk_id":       qdrant.NewValueString(row.ChunkID),
		"chunk_index":    qdrant.NewValueInt(int64(row.ChunkIndex)),
		"chunk_text":     qdrant.NewValueString(row.ChunkText),
		"episode_id":     qdrant.NewValueInt(row.EpisodeID),
		"podcast_id":     qdrant.NewValueInt(row.PodcastID),
		"podcast_name":   qdrant.NewValueString(row.PodcastName),
		"episode_title":  qdrant.NewValueString(row.EpisodeTitle),
		"author":         qdrant.NewValueString(row.Author),
		"category":       qdrant.NewValueString(row.Category),
		"duration":       qdrant.NewValueString(row.Duration),
		"published_date": qdrant.NewValueString(row.PublishedDate),
		"apple_rating":   qdrant.NewValueInt(int64(row.AppleRating)),
		"language":       qdrant.NewValueString(row.Language),
		"created_at":     qdrant.NewValueString(row.CreatedAt),
		"source_model":   qdrant.NewValueString(row.SourceModel),
		"tags":           qdrant.NewValueString(row.TagsJoined()),
		"zero_vector":    qdrant.NewValueBool(row.ZeroVector),
	}
}

// payloadRow reconstructs a chunk row from a qdrant payload. The embedding
// is not round-tripped; readers only need text and provenance.
func payloadRow(payload map[string]*qdrant.Value) ChunkRow {
	row := ChunkRow{}
	if payload == nil {
		return row
	}

	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	num := func(key string) int64 {
		if v, ok := payload[key]; ok {
			return v.GetIntegerValue()
		}
		return 0
	}

	row.ChunkID = str("chunk_id")
	row.ChunkIndex = int(num("chunk_index"))
	row.ChunkText = str("chunk_text")
	row.EpisodeID = num("episode_id")
	row.PodcastID = num("podcast_id")
	row.PodcastName = str("podcast_name")
	row.EpisodeTitle = str("episode_title")
	row.Author = str("author")
	row.Category = str("category")
	row.Duration = str("duration")
	row.PublishedDate = str("published_date")
	row.AppleRating = int(num("apple_rating"))
	row.Language = str("language")
	row.CreatedAt = str("created_at")
	row.SourceModel = str("source_model")
	if tags := str("tags"); tags != "" {
		row.Tags = splitTags(tags)
	}
	if v, ok := payload["zero_vector"]; ok {
		row.ZeroVector = v.GetBoolValue()
	}
	return row
}

func splitTags(joined string) []string {
	parts := make([]string, 0, MaxTagsPerChunk)
	for _, p := range strings.Split(joined, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
