package rag

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/podwise/podwise/internal/vectorstore"
)

func evalState(contexts ...string) *State {
	s := &State{Query: QueryContext{
		Original: "投資理財 podcast 推薦",
		Terms:    []string{"投資理財", "podcast", "推薦"},
	}}
	for _, c := range contexts {
		s.Compressed = append(s.Compressed, CompressedChunk{
			Row:  vectorstore.ChunkRow{ChunkID: c},
			Text: c,
		})
	}
	return s
}

func TestEvaluate_FactualityIsReferencedSourceFraction(t *testing.T) {
	e := NewEvaluator()
	s := evalState("c1", "c2", "c3")

	cited := e.Evaluate("根據[1]與[3],推薦這些投資理財 podcast。", s)
	if math.Abs(cited.Factuality-2.0/3) > 1e-9 {
		t.Errorf("factuality = %f, want 2/3", cited.Factuality)
	}
	if cited.Relevance != 1 {
		t.Errorf("relevance = %f, want 1 (all terms present)", cited.Relevance)
	}

	uncited := e.Evaluate("推薦幾個很棒的投資理財 podcast 給你。", s)
	if uncited.Factuality != 0 {
		t.Errorf("uncited factuality = %f, want 0", uncited.Factuality)
	}
}

func TestEvaluate_ConfidenceTracksSourceVolumeAndLength(t *testing.T) {
	e := NewEvaluator()
	answer := "根據[1],推薦這三個投資理財 podcast,內容涵蓋股票與基金。"

	full := e.Evaluate(answer, evalState("c1", "c2", "c3"))
	if math.Abs(full.Confidence-1) > 1e-9 {
		t.Errorf("three sources and a healthy length = %f, want 1", full.Confidence)
	}

	thin := e.Evaluate(answer, evalState("c1"))
	if math.Abs(thin.Confidence-0.6) > 1e-9 {
		t.Errorf("one source = %f, want 0.6", thin.Confidence)
	}
	if !e.Compare(full, thin) {
		t.Error("more cited sources must outrank fewer")
	}
}

func TestCoherence_PenalizesErraticSentenceLengths(t *testing.T) {
	even := coherence("今天聊投資觀念。接著談資產配置。最後提醒風險。")
	erratic := coherence("好。" + strings.Repeat("這一句非常非常長地繞了很多圈才結束", 5) + "。嗯。")
	if even <= erratic {
		t.Errorf("even %f must beat erratic %f", even, erratic)
	}
	if got := coherence("單獨一句話"); got != 1 {
		t.Errorf("single sentence = %f, want 1", got)
	}
}

func TestEvaluate_EmptyAnswerScoresZero(t *testing.T) {
	e := NewEvaluator()
	if q := e.Evaluate("  ", evalState("c1")); q.Confidence != 0 {
		t.Errorf("empty answer confidence = %f", q.Confidence)
	}
}

func TestBenchmark_PrefersGroundedBackend(t *testing.T) {
	e := NewEvaluator()
	grounded := func(_ context.Context, query string) (*Response, error) {
		return &Response{
			Answer: "根據[1][2][3],推薦這些投資理財節目,內容涵蓋股票、基金與資產配置。",
			Sources: []Source{
				{ChunkID: "a0"}, {ChunkID: "a1"}, {ChunkID: "b0"},
			},
		}, nil
	}
	bare := func(_ context.Context, query string) (*Response, error) {
		return &Response{Answer: "可以多聽聽各種節目。", Sources: []Source{}}, nil
	}

	queries := []string{"投資理財 podcast 推薦", "推薦創業相關節目"}
	result, err := e.Benchmark(context.Background(), queries, grounded, bare)
	if err != nil {
		t.Fatalf("benchmark: %v", err)
	}
	if result.Queries != 2 || result.AWins != 2 || result.BWins != 0 {
		t.Errorf("result = %+v, want backend A winning both queries", result)
	}
	if result.AMean <= result.BMean {
		t.Errorf("mean confidence A %f must beat B %f", result.AMean, result.BMean)
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
