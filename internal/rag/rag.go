// Package rag implements the hierarchical retrieval cascade: six gated
// levels from query rewriting to hybrid answer generation, each free to
// improve the working state but rolled back when its confidence misses the
// configured threshold. Every request ends in either an accepted generated
// answer or the terminal fallback.
package rag

import (
	"context"
	"time"

	"github.com/podwise/podwise/internal/reranker"
	"github.com/podwise/podwise/internal/vectorstore"
)

// Intent classifies what the user is after.
type Intent string

const (
	IntentRecommendation Intent = "recommendation"
	IntentAnalysis       Intent = "analysis"
	IntentSearch         Intent = "search"
	IntentGeneral        Intent = "general"
)

// ParseIntent maps a label to an Intent, defaulting to general.
func ParseIntent(s string) Intent {
	switch Intent(s) {
	case IntentRecommendation, IntentAnalysis, IntentSearch:
		return Intent(s)
	default:
		return IntentGeneral
	}
}

// Domain classifies the query's subject area. Business and education
// queries narrow retrieval to the matching podcast category.
type Domain string

const (
	DomainBusiness   Domain = "business"
	DomainEducation  Domain = "education"
	DomainTechnology Domain = "technology"
	DomainGeneral    Domain = "general"
)

// Request is one user query with optional scalar constraints. Category
// accepts the gateway names "business" and "education" as well as native
// category labels. DeadlineMS overrides the engine's default request budget
// when positive.
type Request struct {
	Query           string
	UserID          string
	SessionID       string
	Category        string
	PodcastID       int64
	Language        string
	UseHybridSearch bool
	DeadlineMS      int
}

// QueryContext is the working form of the query. Terms and Tags are derived
// deterministically before the cascade runs; Rewritten, Intent, Entities
// and Domain are produced by the first level and revert on rejection.
type QueryContext struct {
	Original  string
	Rewritten string
	Intent    Intent
	Entities  []string
	Domain    Domain
	Terms     []string
	Tags      []string

	Category  string
	PodcastID int64
	Language  string
	Hybrid    bool
}

// Active returns the query text the retrieval levels should use.
func (q *QueryContext) Active() string {
	if q.Rewritten != "" {
		return q.Rewritten
	}
	return q.Original
}

// Filter renders the scalar constraints for the vector store. Without an
// explicit category, a business or education domain classification narrows
// retrieval to the matching category.
func (q *QueryContext) Filter() vectorstore.Filter {
	category := q.Category
	if category == "" {
		switch q.Domain {
		case DomainBusiness:
			category = CategoryBusiness
		case DomainEducation:
			category = CategoryEducation
		}
	}
	return vectorstore.Filter{
		Category:           category,
		PodcastID:          q.PodcastID,
		Language:           q.Language,
		ExcludeZeroVectors: true,
	}
}

// Native category labels of the podcast catalog.
const (
	CategoryBusiness  = "商業"
	CategoryEducation = "教育"
)

// CategoryLabel maps the gateway filter names onto the native category
// labels. Unrecognized values pass through so native labels keep working.
func CategoryLabel(filter string) string {
	switch filter {
	case "business":
		return CategoryBusiness
	case "education":
		return CategoryEducation
	default:
		return filter
	}
}

// Source is one provenance entry of a response.
type Source struct {
	ChunkID      string  `json:"chunk_id"`
	PodcastName  string  `json:"podcast_name"`
	EpisodeTitle string  `json:"episode_title"`
	Score        float64 `json:"score"`
}

// Response is the terminal result of one request. LevelUsed is "L6" for an
// accepted generated answer and "fallback" otherwise; DeepestAccepted
// records how far the cascade got regardless of the outcome.
type Response struct {
	Answer          string             `json:"answer"`
	Sources         []Source           `json:"sources"`
	Confidence      float64            `json:"confidence"`
	LevelUsed       string             `json:"level_used"`
	DeepestAccepted string             `json:"deepest_accepted_level,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	Levels          map[string]float64 `json:"level_confidences"`
}

// CompressedChunk is one candidate after context compression: the shortened
// content, its provenance row, and how much of the original survived.
type CompressedChunk struct {
	Row   vectorstore.ChunkRow
	Score float64
	Text  string
	Ratio float64
}

// State is the mutable pipeline state threaded through the levels. Snapshot
// and restore implement the rollback contract: a rejected level leaves no
// trace.
type State struct {
	Query      QueryContext
	Hits       []vectorstore.ScoredChunk
	Reranked   []reranker.Scored
	Compressed []CompressedChunk
	Answer     string
}

// candidates returns the working candidate set: the reranked selection when
// re-ranking was accepted, otherwise the hits carried from retrieval.
func (s *State) candidates() []vectorstore.ScoredChunk {
	if len(s.Reranked) > 0 {
		out := make([]vectorstore.ScoredChunk, 0, len(s.Reranked))
		for _, r := range s.Reranked {
			out = append(out, vectorstore.ScoredChunk{Row: r.Row, Score: r.Score})
		}
		return out
	}
	return s.Hits
}

// snapshot deep-copies the mutable state.
func (s *State) snapshot() *State {
	cp := &State{
		Query:  s.Query,
		Answer: s.Answer,
	}
	cp.Query.Entities = append([]string(nil), s.Query.Entities...)
	cp.Query.Terms = append([]string(nil), s.Query.Terms...)
	cp.Query.Tags = append([]string(nil), s.Query.Tags...)
	cp.Hits = append([]vectorstore.ScoredChunk(nil), s.Hits...)
	cp.Reranked = append([]reranker.Scored(nil), s.Reranked...)
	cp.Compressed = append([]CompressedChunk(nil), s.Compressed...)
	return cp
}

func (s *State) restore(from *State) {
	*s = *from
}

// Level is one stage of the cascade. Run mutates the state and reports its
// confidence; the controller rejects the mutation when the confidence is
// below Threshold.
type Level interface {
	Name() string
	Threshold() float64
	Run(ctx context.Context, s *State) (float64, error)
}

// Retriever is one retrieval strategy fused at the hybrid search level.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, q *QueryContext) ([]vectorstore.ScoredChunk, error)
}
