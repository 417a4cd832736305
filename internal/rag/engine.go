package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/podwise/podwise/internal/config"
	"github.com/podwise/podwise/internal/embedder"
	"github.com/podwise/podwise/internal/llm"
	"github.com/podwise/podwise/internal/reranker"
	"github.com/podwise/podwise/internal/taxonomy"
	"github.com/podwise/podwise/internal/vectorstore"
)

const (
	// FallbackConfidence is the fixed confidence of the terminal fallback.
	FallbackConfidence = 0.8

	// FallbackLevel names the terminal fallback in responses.
	FallbackLevel = "fallback"

	// FallbackAnswer is returned when no level chain produced an accepted
	// answer.
	FallbackAnswer = "抱歉,目前找不到足夠相關的節目內容來回答這個問題。" +
		"可以換個方式描述,或指定想查詢的節目類別再試一次。"
)

// Engine drives the cascade: deterministic query preparation, the six gated
// levels in order, and the terminal fallback when the final level's answer
// is not accepted. Levels that miss their threshold are rolled back but the
// cascade continues on the prior state.
type Engine struct {
	registry *taxonomy.Registry
	levels   []Level
	deadline time.Duration
}

// NewEngine assembles a cascade over prebuilt levels.
func NewEngine(registry *taxonomy.Registry, levels []Level, deadline time.Duration) *Engine {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Engine{registry: registry, levels: levels, deadline: deadline}
}

// BuildLevels wires the standard six levels from the pipeline parameters.
func BuildLevels(
	p config.Pipeline,
	client llm.LLM,
	generalModel, domainModel string,
	emb embedder.Embedder,
	store vectorstore.Store,
) []Level {
	retrievers := []Retriever{
		NewDenseRetriever(emb, store),
		NewSparseRetriever(store),
		NewSemanticRetriever(emb, store),
	}
	return []Level{
		NewRewriteLevel(client, generalModel, p.L1Threshold),
		NewRetrieveLevel(retrievers, p.L2Threshold),
		NewAugmentLevel(store, p.L3Threshold),
		NewRerankLevel(reranker.New(reranker.DefaultWeights()), p.L4Threshold),
		NewCompressLevel(p.L5Threshold),
		NewGenerateLevel(client, generalModel, domainModel, NewEvaluator(), p.L6Threshold),
	}
}

// Ask answers one request. A degraded pipeline never surfaces as an error:
// every rejection path, including an elapsed request budget, ends in the
// terminal fallback.
func (e *Engine) Ask(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	levelConf := make(map[string]float64, len(e.levels))

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return e.fallback(levelConf, ""), nil
	}

	deadline := e.deadline
	if req.DeadlineMS > 0 {
		deadline = time.Duration(req.DeadlineMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	state := &State{Query: QueryContext{
		Original:  query,
		Terms:     queryTerms(query),
		Tags:      e.registry.Resolve(query),
		Category:  CategoryLabel(req.Category),
		PodcastID: req.PodcastID,
		Language:  req.Language,
		Hybrid:    req.UseHybridSearch,
	}}

	accepted := false
	deepest := ""
	for _, level := range e.levels {
		if ctx.Err() != nil {
			slog.Warn("request deadline elapsed mid-cascade", "level", level.Name())
			break
		}

		snap := state.snapshot()
		conf, err := level.Run(ctx, state)
		levelConf[level.Name()] = conf

		ok := err == nil && conf >= level.Threshold()
		if !ok {
			state.restore(snap)
			slog.Debug("level rejected",
				"level", level.Name(), "confidence", conf, "error", err)
		} else {
			deepest = level.Name()
		}
		if level.Name() == "L6" {
			accepted = ok
		}
	}

	if !accepted || state.Answer == "" {
		resp := e.fallback(levelConf, deepest)
		slog.Info("request answered",
			"level_used", resp.LevelUsed, "session_id", req.SessionID,
			"user_id", req.UserID, "elapsed", time.Since(start))
		return resp, nil
	}

	resp := &Response{
		Answer:          state.Answer,
		Sources:         sources(state.Compressed),
		Confidence:      levelConf["L6"],
		LevelUsed:       "L6",
		DeepestAccepted: deepest,
		Timestamp:       time.Now().UTC(),
		Levels:          levelConf,
	}
	slog.Info("request answered",
		"level_used", resp.LevelUsed, "confidence", resp.Confidence,
		"sources", len(resp.Sources), "session_id", req.SessionID,
		"user_id", req.UserID, "elapsed", time.Since(start))
	return resp, nil
}

func (e *Engine) fallback(levelConf map[string]float64, deepest string) *Response {
	return &Response{
		Answer:          FallbackAnswer,
		Sources:         []Source{},
		Confidence:      FallbackConfidence,
		LevelUsed:       FallbackLevel,
		DeepestAccepted: deepest,
		Timestamp:       time.Now().UTC(),
		Levels:          levelConf,
	}
}

// sources lists the provenance of the candidates the generator actually
// saw: the strongest compressed entries, in citation order.
func sources(compressed []CompressedChunk) []Source {
	n := len(compressed)
	if n > generateTopK {
		n = generateTopK
	}
	out := make([]Source, 0, n)
	for _, c := range compressed[:n] {
		out = append(out, Source{
			ChunkID:      c.Row.ChunkID,
			PodcastName:  c.Row.PodcastName,
			EpisodeTitle: c.Row.EpisodeTitle,
			Score:        c.Score,
		})
	}
	return out
}

// queryTerms lowercases and splits the query on whitespace for lexical
// scoring. CJK queries often arrive as a single field; the taxonomy tags
// carry the topical signal in that case.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
