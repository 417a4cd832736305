package rag

import (
	"context"
	"fmt"
	"strings"
)

// Quality is the deterministic quality assessment of a candidate answer.
type Quality struct {
	Confidence float64 `json:"confidence"`
	Factuality float64 `json:"factuality"`
	Relevance  float64 `json:"relevance"`
	Coherence  float64 `json:"coherence"`
}

// Evaluator scores candidate answers against the query and their cited
// sources without another model call, so every verdict is reproducible.
type Evaluator struct{}

// NewEvaluator returns the answer quality scorer.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate scores one candidate inside the cascade: the compressed context
// entries act as the citable sources.
func (e *Evaluator) Evaluate(answer string, s *State) Quality {
	n := len(s.Compressed)
	if n > generateTopK {
		n = generateTopK
	}
	return e.assess(answer, n, s.Query.Terms)
}

// Score rates a finished response, with its source list as the citable set.
func (e *Evaluator) Score(resp *Response, query string) Quality {
	return e.assess(resp.Answer, len(resp.Sources), queryTerms(query))
}

// assess computes the four metrics: factuality is the proportion of sources
// the answer actually references, relevance the query-term overlap,
// coherence the evenness of sentence lengths, and confidence a blend of
// source volume and answer length.
func (e *Evaluator) assess(answer string, nSources int, terms []string) Quality {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return Quality{}
	}

	q := Quality{
		Factuality: referencedFraction(answer, nSources),
		Relevance:  termCoverage(answer, terms),
		Coherence:  coherence(answer),
	}

	volume := float64(nSources) / generateTopK
	if volume > 1 {
		volume = 1
	}
	q.Confidence = 0.6*volume + 0.4*lengthScore(answer)
	return q
}

// Compare reports whether a beats b.
func (e *Evaluator) Compare(a, b Quality) bool {
	return a.Confidence > b.Confidence
}

// AskFunc answers one query; both engine backends satisfy it.
type AskFunc func(ctx context.Context, query string) (*Response, error)

// BenchmarkResult aggregates a two-backend comparison over a query set.
type BenchmarkResult struct {
	Queries int     `json:"queries"`
	AWins   int     `json:"a_wins"`
	BWins   int     `json:"b_wins"`
	Ties    int     `json:"ties"`
	AMean   float64 `json:"a_mean_confidence"`
	BMean   float64 `json:"b_mean_confidence"`
}

// Benchmark runs both backends over the shared query set and scores every
// answer, counting per-query wins.
func (e *Evaluator) Benchmark(ctx context.Context, queries []string, a, b AskFunc) (*BenchmarkResult, error) {
	result := &BenchmarkResult{Queries: len(queries)}
	for _, query := range queries {
		respA, err := a(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to run backend A: %w", err)
		}
		respB, err := b(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to run backend B: %w", err)
		}

		qa, qb := e.Score(respA, query), e.Score(respB, query)
		result.AMean += qa.Confidence
		result.BMean += qb.Confidence
		switch {
		case e.Compare(qa, qb):
			result.AWins++
		case e.Compare(qb, qa):
			result.BWins++
		default:
			result.Ties++
		}
	}
	if result.Queries > 0 {
		result.AMean /= float64(result.Queries)
		result.BMean /= float64(result.Queries)
	}
	return result, nil
}

// referencedFraction is the proportion of the numbered sources the answer
// cites as [n].
func referencedFraction(answer string, nSources int) float64 {
	if nSources <= 0 {
		return 0
	}
	referenced := 0
	for i := 1; i <= nSources; i++ {
		if strings.Contains(answer, fmt.Sprintf("[%d]", i)) {
			referenced++
		}
	}
	return float64(referenced) / float64(nSources)
}

// termCoverage is the fraction of query terms the answer mentions.
func termCoverage(answer string, terms []string) float64 {
	if len(terms) == 0 {
		return 0.5 // no terms to check, neither good nor bad
	}
	lower := strings.ToLower(answer)
	matched := 0
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// coherence is one minus the normalized sentence-length variance: an answer
// swinging between fragments and run-ons reads as incoherent.
func coherence(answer string) float64 {
	lengths := sentenceLengths(answer)
	if len(lengths) <= 1 {
		return 1
	}

	mean := 0.0
	for _, n := range lengths {
		mean += float64(n)
	}
	mean /= float64(len(lengths))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, n := range lengths {
		d := float64(n) - mean
		variance += d * d
	}
	variance /= float64(len(lengths))

	normalized := variance / (mean * mean)
	if normalized > 1 {
		return 0
	}
	return 1 - normalized
}

// sentenceLengths splits on terminal punctuation and measures each sentence
// in runes, skipping empty fragments.
func sentenceLengths(text string) []int {
	var lengths []int
	count := 0
	for _, r := range text {
		switch r {
		case '。', '!', '?', '.':
			if count > 0 {
				lengths = append(lengths, count)
				count = 0
			}
		default:
			count++
		}
	}
	if count > 0 {
		lengths = append(lengths, count)
	}
	return lengths
}

// lengthScore bands the answer length: too short is useless, extreme length
// suggests a runaway generation.
func lengthScore(answer string) float64 {
	n := len([]rune(answer))
	switch {
	case n < 10:
		return 0.2
	case n < 30:
		return 0.6
	case n <= 2000:
		return 1
	case n <= 4000:
		return 0.6
	default:
		return 0.2
	}
}
