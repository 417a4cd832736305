package reranker

import (
	"math"
	"testing"
	"time"

	"github.com/podwise/podwise/internal/vectorstore"
)

func hit(id, primaryTag string, score float64, published string, rating int) vectorstore.ScoredChunk {
	row := vectorstore.ChunkRow{
		ChunkID:       id,
		ChunkText:     "內容" + id,
		PublishedDate: published,
		AppleRating:   rating,
	}
	if primaryTag != "" {
		row.Tags = []string{primaryTag}
	}
	return vectorstore.ScoredChunk{Row: row, Score: score}
}

func fixedNow(r *Reranker) {
	r.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
}

func TestRerank_OrdersByCompositeScore(t *testing.T) {
	r := New(Weights{})
	fixedNow(r)

	hits := []vectorstore.ScoredChunk{
		hit("low", "創業", 0.2, "2024-01-01", 0),
		hit("high", "投資理財", 0.9, "2026-05-02", 5),
		hit("mid", "教育", 0.5, "2025-12-03", 3),
	}

	got := r.Rerank(hits)
	if len(got) != 3 {
		t.Fatalf("selected %d, want 3", len(got))
	}
	if got[0].Row.ChunkID != "high" || got[1].Row.ChunkID != "mid" || got[2].Row.ChunkID != "low" {
		t.Errorf("order = [%s %s %s]", got[0].Row.ChunkID, got[1].Row.ChunkID, got[2].Row.ChunkID)
	}
	for _, s := range got {
		if s.Score < 0 || s.Score > 1 {
			t.Errorf("score %f out of range", s.Score)
		}
	}
}

func TestRerank_SameTopicTiesGetSpacedApart(t *testing.T) {
	r := New(Weights{})
	fixedNow(r)

	// Three indistinguishable same-topic candidates: each selection must
	// discount the rest, so equal scores never sit next to each other.
	hits := []vectorstore.ScoredChunk{
		hit("a", "投資理財", 0.9, "2026-03-03", 4),
		hit("b", "投資理財", 0.9, "2026-03-03", 4),
		hit("c", "投資理財", 0.9, "2026-03-03", 4),
	}

	got := r.Rerank(hits)
	if len(got) != 3 {
		t.Fatalf("selected %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Row.PrimaryTag() == cur.Row.PrimaryTag() &&
			math.Abs(prev.Score-cur.Score) < scoreEpsilon {
			t.Errorf("adjacent same-topic candidates within %.2f: %f vs %f",
				scoreEpsilon, prev.Score, cur.Score)
		}
		if cur.Score >= prev.Score {
			t.Errorf("selection not descending: %f then %f", prev.Score, cur.Score)
		}
	}
}

func TestRerank_CapsPrimaryTagAtThree(t *testing.T) {
	r := New(Weights{})
	fixedNow(r)

	hits := []vectorstore.ScoredChunk{
		hit("a1", "投資理財", 0.9, "2026-05-02", 4),
		hit("a2", "投資理財", 0.9, "2026-05-02", 4),
		hit("a3", "投資理財", 0.9, "2026-05-02", 4),
		hit("a4", "投資理財", 0.9, "2026-05-02", 4),
		hit("b1", "創業", 0.3, "2026-05-02", 4),
	}

	got := r.Rerank(hits)
	perTag := map[string]int{}
	for _, s := range got {
		perTag[s.Row.PrimaryTag()]++
	}
	if perTag["投資理財"] != 3 {
		t.Errorf("投資理財 selected %d times, want 3", perTag["投資理財"])
	}
	if perTag["創業"] != 1 {
		t.Errorf("the lower-scored off-topic hit must slip in, got %v", perTag)
	}
}

func TestRerank_BoundsOutput(t *testing.T) {
	r := New(Weights{})
	fixedNow(r)

	var hits []vectorstore.ScoredChunk
	tags := []string{"一", "二", "三", "四", "五", "六", "七", "八"}
	for i, tag := range tags {
		hits = append(hits, hit(tag, tag, 0.9-float64(i)*0.05, "2026-05-02", 4))
	}

	got := r.Rerank(hits)
	if len(got) != 5 {
		t.Errorf("selected %d, want 5", len(got))
	}
	if r.Rerank(nil) != nil {
		t.Error("no hits must yield nil")
	}
}

func TestFreshnessWindow(t *testing.T) {
	r := New(Weights{})
	fixedNow(r)

	if got := r.freshness("2026-05-02"); math.Abs(got-(1-30.0/365)) > 1e-3 {
		t.Errorf("30-day-old episode freshness = %f", got)
	}
	if got := r.freshness("2020-01-01"); got != 0 {
		t.Errorf("episode beyond the window = %f, want 0", got)
	}
	if got := r.freshness("未知"); got != 0 {
		t.Errorf("unparseable date = %f, want 0", got)
	}
	if got := r.freshness("2031-01-01"); got != 1 {
		t.Errorf("future date = %f, want 1", got)
	}
}

func TestNovelty(t *testing.T) {
	counts := map[string]int{"投資理財": 3, "創業": 1}
	if got := novelty("投資理財", counts); math.Abs(got-1.0/3) > 1e-9 {
		t.Errorf("dominant tag novelty = %f, want 1/3", got)
	}
	if got := novelty("創業", counts); got != 1 {
		t.Errorf("unique tag novelty = %f, want 1", got)
	}
	if got := novelty("", counts); got != 1 {
		t.Errorf("untagged novelty = %f, want 1", got)
	}
}

func TestConfidence(t *testing.T) {
	if got := Confidence(nil); got != 0 {
		t.Errorf("empty confidence = %f", got)
	}
	if got := Confidence([]Scored{{Score: 0.5}, {Score: 0.5}}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("uniform scores = %f, want mean 0.5 undiscounted", got)
	}
	// Mean 0.5, variance 0.09: the spread discounts the mean.
	got := Confidence([]Scored{{Score: 0.2}, {Score: 0.8}})
	if math.Abs(got-0.455) > 1e-9 {
		t.Errorf("spread scores = %f, want 0.455", got)
	}
}
