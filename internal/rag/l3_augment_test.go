package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/podwise/podwise/internal/vectorstore"
)

// flakyNeighbors fails neighbor lookups for one episode and delegates the
// rest to the wrapped store.
type flakyNeighbors struct {
	vectorstore.Store
	failEpisode int64
}

func (f flakyNeighbors) Neighbors(ctx context.Context, episodeID int64, chunkIndex int) (*vectorstore.ChunkRow, *vectorstore.ChunkRow, error) {
	if episodeID == f.failEpisode {
		return nil, nil, errors.New("neighbor index unavailable")
	}
	return f.Store.Neighbors(ctx, episodeID, chunkIndex)
}

func augmentStore(t *testing.T) *vectorstore.MemoryStore {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	rows := []vectorstore.ChunkRow{
		seedRow("a0", 11, 0, "開場先聊市場氣氛。", "投資理財"),
		seedRow("a1", 11, 1, "接著進入投資理財主題。", "投資理財"),
		seedRow("a2", 11, 2, "收尾提醒風險控管。", "投資理財"),
		seedRow("b0", 12, 0, "創業者的現金流管理。", "創業"),
	}
	if err := store.Upsert(context.Background(), rows); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestAugment_EnrichesContentInPlace(t *testing.T) {
	store := augmentStore(t)
	level := NewAugmentLevel(store, 0.5)

	rows := store.Rows()
	var middle vectorstore.ChunkRow
	for _, r := range rows {
		if r.ChunkID == "a1" {
			middle = r
		}
	}
	s := &State{Hits: []vectorstore.ScoredChunk{{Row: middle, Score: 0.8}}}

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 1 {
		t.Errorf("confidence = %f, want 1 (every candidate augmented)", conf)
	}
	if len(s.Hits) != 1 {
		t.Fatalf("candidate count changed: %d", len(s.Hits))
	}

	content := s.Hits[0].Row.ChunkText
	for _, want := range []string{
		"開場先聊市場氣氛",   // previous chunk
		"接著進入投資理財主題", // the candidate itself
		"收尾提醒風險控管",   // next chunk
		"EP10 投資入門",   // episode title
		"商業",          // podcast category
	} {
		if !strings.Contains(content, want) {
			t.Errorf("augmented content missing %q:\n%s", want, content)
		}
	}

	if got := s.Hits[0].Score; got < 0.88-1e-9 || got > 0.88+1e-9 {
		t.Errorf("score = %f, want 0.8 boosted to 0.88", got)
	}
}

func TestAugment_BoostClipsAtOne(t *testing.T) {
	store := augmentStore(t)
	level := NewAugmentLevel(store, 0.5)

	s := &State{Hits: []vectorstore.ScoredChunk{{Row: store.Rows()[0], Score: 0.97}}}
	if _, err := level.Run(context.Background(), s); err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Hits[0].Score != 1 {
		t.Errorf("score = %f, want clipped to 1", s.Hits[0].Score)
	}
}

func TestAugment_ConfidenceIsAugmentedFraction(t *testing.T) {
	store := augmentStore(t)
	level := NewAugmentLevel(flakyNeighbors{Store: store, failEpisode: 12}, 0.5)

	var hits []vectorstore.ScoredChunk
	for _, r := range store.Rows() {
		if r.ChunkID == "a1" || r.ChunkID == "b0" {
			hits = append(hits, vectorstore.ScoredChunk{Row: r, Score: 0.5})
		}
	}
	s := &State{Hits: hits}

	conf, err := level.Run(context.Background(), s)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if conf != 0.5 {
		t.Errorf("confidence = %f, want 0.5 (one of two augmented)", conf)
	}
	if len(s.Hits) != 2 {
		t.Errorf("candidate count changed: %d", len(s.Hits))
	}

	// The failed candidate keeps its original content and score.
	for _, h := range s.Hits {
		if h.Row.EpisodeID == 12 {
			if h.Score != 0.5 || strings.Contains(h.Row.ChunkText, "單集:") {
				t.Errorf("failed candidate must stay untouched: %+v", h)
			}
		}
	}
}

func TestAugment_NoHitsScoresZero(t *testing.T) {
	level := NewAugmentLevel(augmentStore(t), 0.5)
	if conf, err := level.Run(context.Background(), &State{}); err != nil || conf != 0 {
		t.Errorf("conf, err = %f, %v; want 0, nil", conf, err)
	}
}
