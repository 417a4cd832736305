package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeSource serves canned rows and can fail a configurable number of times.
type fakeSource struct {
	podcast     *Podcast
	episodes    []Episode
	podcastErrs int
	episodeErrs int
}

func (f *fakeSource) Podcast(_ context.Context, id int64) (*Podcast, error) {
	if f.podcastErrs > 0 {
		f.podcastErrs--
		return nil, errors.New("transient")
	}
	if f.podcast == nil || f.podcast.PodcastID != id {
		return nil, ErrPodcastNotFound
	}
	return f.podcast, nil
}

func (f *fakeSource) Episodes(_ context.Context, _ int64) ([]Episode, error) {
	if f.episodeErrs > 0 {
		f.episodeErrs--
		return nil, errors.New("transient")
	}
	return f.episodes, nil
}

func newFake() *fakeSource {
	return &fakeSource{
		podcast: &Podcast{
			PodcastID:   1321,
			PodcastName: "財經M平方",
			Author:      "MacroMicro",
			Category:    "商業",
			AppleRating: 4,
		},
		episodes: []Episode{
			{EpisodeID: 10, PodcastID: 1321, EpisodeTitle: "EP122 美股展望", Duration: "42", PublishedDate: "2024-01-03"},
			{EpisodeID: 11, PodcastID: 1321, EpisodeTitle: "EP123 投資理財", Duration: "38", PublishedDate: "2024-01-10"},
			{EpisodeID: 12, PodcastID: 1321, EpisodeTitle: "EP124 通膨解析", Duration: "", PublishedDate: ""},
		},
	}
}

func TestResolve_ExactTitle(t *testing.T) {
	r := NewResolver(newFake(), 0)
	b, err := r.Resolve(context.Background(), 1321, "EP123 投資理財")
	if err != nil {
		t.Fatal(err)
	}
	if b.EpisodeID != 11 {
		t.Errorf("expected episode 11, got %d", b.EpisodeID)
	}
	if b.Category != "商業" || b.PodcastName != "財經M平方" {
		t.Errorf("podcast attributes lost: %+v", b)
	}
	if !b.Complete() {
		t.Error("resolved bundle should be complete")
	}
}

func TestResolve_EpisodeNumberToken(t *testing.T) {
	r := NewResolver(newFake(), 0)
	b, err := r.Resolve(context.Background(), 1321, "ep0124 完全不同的標題")
	if err != nil {
		t.Fatal(err)
	}
	if b.EpisodeID != 12 {
		t.Errorf("EP token match failed: got episode %d", b.EpisodeID)
	}
}

func TestResolve_FuzzyPrefersPopulatedRows(t *testing.T) {
	f := newFake()
	// Two rows sharing characters with the hint; only one has duration
	// and published_date populated.
	f.episodes = []Episode{
		{EpisodeID: 20, PodcastID: 1321, EpisodeTitle: "投資 理財 入門"},
		{EpisodeID: 21, PodcastID: 1321, EpisodeTitle: "投資理財進階", Duration: "40", PublishedDate: "2024-02-01"},
	}
	r := NewResolver(f, 0)
	b, err := r.Resolve(context.Background(), 1321, "投資理財")
	if err != nil {
		t.Fatal(err)
	}
	if b.EpisodeID != 21 {
		t.Errorf("fuzzy match should prefer populated row, got %d", b.EpisodeID)
	}
}

func TestResolve_PodcastFallback(t *testing.T) {
	r := NewResolver(newFake(), 0)
	b, err := r.Resolve(context.Background(), 1321, "完全無關的標題九九九")
	if err != nil {
		t.Fatal(err)
	}
	if b.EpisodeID != SentinelEpisode {
		t.Errorf("fallback must carry episode_id 0, got %d", b.EpisodeID)
	}
	if b.Duration != "40" { // (42+38)/2
		t.Errorf("average duration = %q, want 40", b.Duration)
	}
	if b.PublishedDate != "2024-01-03" {
		t.Errorf("earliest date = %q", b.PublishedDate)
	}
	if b.Complete() {
		t.Error("fallback bundle must not report complete")
	}
}

func TestResolve_PodcastMissing(t *testing.T) {
	r := NewResolver(&fakeSource{}, 0)
	b, err := r.Resolve(context.Background(), 9999, "title")
	if err != nil {
		t.Fatal(err)
	}
	if b.PodcastName != UnknownText || b.Category != UnknownText {
		t.Errorf("sentinel bundle expected, got %+v", b)
	}
	if b.EpisodeID != SentinelEpisode {
		t.Errorf("sentinel episode id expected, got %d", b.EpisodeID)
	}
}

func TestResolve_RetriesOnce(t *testing.T) {
	f := newFake()
	f.podcastErrs = 1 // first call fails, retry succeeds
	r := NewResolver(f, 0)
	b, err := r.Resolve(context.Background(), 1321, "EP123 投資理財")
	if err != nil {
		t.Fatal(err)
	}
	if b.EpisodeID != 11 {
		t.Errorf("retry should recover, got %+v", b)
	}
}

func TestCoerceText(t *testing.T) {
	if got := CoerceText("", 64); got != UnknownText {
		t.Errorf("empty → %q, want sentinel", got)
	}
	long := strings.Repeat("字", 300)
	got := CoerceText(long, MaxTextField)
	if len([]rune(got)) != MaxTextField {
		t.Errorf("truncated length = %d, want %d", len([]rune(got)), MaxTextField)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncation must end with ..., got %q", got[len(got)-9:])
	}
}
