package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	// fuzzyThreshold accepts a normalized-title match when the Jaccard
	// overlap of character sets reaches this value.
	fuzzyThreshold = 0.3

	// defaultQueryTimeout bounds a single metadata query.
	defaultQueryTimeout = 5 * time.Second
)

var epNumberPattern = regexp.MustCompile(`(?i)EP\s*0*(\d+)`)

// Resolver joins chunks to episode and podcast attributes. Matching runs
// against the episode list of one podcast: exact title, then episode-number
// token, then fuzzy normalized title. No match degrades to a podcast-level
// fallback bundle with EpisodeID 0.
type Resolver struct {
	source  Source
	timeout time.Duration
}

// NewResolver builds a resolver over the given source. A zero timeout uses
// the 5s default.
func NewResolver(source Source, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Resolver{source: source, timeout: timeout}
}

// Resolve produces the attribute bundle for (podcastID, titleHint). Queries
// retry once on failure. When even the podcast row is unavailable the
// bundle carries sentinels throughout so the chunk still indexes under the
// unknown category.
func (r *Resolver) Resolve(ctx context.Context, podcastID int64, titleHint string) (*Bundle, error) {
	podcast, err := r.podcastWithRetry(ctx, podcastID)
	if err != nil {
		slog.Warn("podcast lookup failed, using sentinel bundle",
			"podcast_id", podcastID, "error", err)
		return sentinelBundle(podcastID, titleHint), nil
	}

	episodes, err := r.episodesWithRetry(ctx, podcastID)
	if err != nil {
		slog.Warn("episode lookup failed, using podcast fallback",
			"podcast_id", podcastID, "error", err)
		return podcastFallback(podcast, nil, titleHint), nil
	}

	if ep := matchEpisode(episodes, titleHint); ep != nil {
		return episodeBundle(podcast, ep), nil
	}
	return podcastFallback(podcast, episodes, titleHint), nil
}

func (r *Resolver) podcastWithRetry(ctx context.Context, podcastID int64) (*Podcast, error) {
	p, err := r.podcastOnce(ctx, podcastID)
	if err == nil || err == ErrPodcastNotFound || ctx.Err() != nil {
		return p, err
	}
	return r.podcastOnce(ctx, podcastID)
}

func (r *Resolver) podcastOnce(ctx context.Context, podcastID int64) (*Podcast, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.source.Podcast(qctx, podcastID)
}

func (r *Resolver) episodesWithRetry(ctx context.Context, podcastID int64) ([]Episode, error) {
	eps, err := r.episodesOnce(ctx, podcastID)
	if err == nil || ctx.Err() != nil {
		return eps, err
	}
	return r.episodesOnce(ctx, podcastID)
}

func (r *Resolver) episodesOnce(ctx context.Context, podcastID int64) ([]Episode, error) {
	qctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.source.Episodes(qctx, podcastID)
}

// matchEpisode walks the matching ladder. Returns nil when no rule accepts.
func matchEpisode(episodes []Episode, titleHint string) *Episode {
	hint := strings.TrimSpace(titleHint)
	if hint == "" || len(episodes) == 0 {
		return nil
	}

	// 1. Exact title match.
	for i := range episodes {
		if episodes[i].EpisodeTitle == hint {
			return &episodes[i]
		}
	}

	// 2. Episode-number token match (EP123).
	if num := epNumber(hint); num != "" {
		for i := range episodes {
			if epNumber(episodes[i].EpisodeTitle) == num {
				return &episodes[i]
			}
		}
	}

	// 3. Fuzzy normalized-title match, preferring rows with both duration
	// and published_date populated.
	normHint := normalizeTitle(hint)
	if normHint == "" {
		return nil
	}
	hintSet := charSet(normHint)

	var best *Episode
	var bestScore float64
	var bestComplete bool
	for i := range episodes {
		score := jaccard(hintSet, charSet(normalizeTitle(episodes[i].EpisodeTitle)))
		if score < fuzzyThreshold {
			continue
		}
		complete := episodes[i].Duration != "" && episodes[i].PublishedDate != ""
		switch {
		case best == nil,
			complete && !bestComplete,
			complete == bestComplete && score > bestScore:
			best = &episodes[i]
			bestScore = score
			bestComplete = complete
		}
	}
	return best
}

// epNumber extracts the canonical episode-number token, without leading
// zeros, or "" when absent.
func epNumber(title string) string {
	m := epNumberPattern.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

// normalizeTitle removes whitespace and lowercases for fuzzy comparison.
func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), ""))
}

func charSet(s string) map[rune]struct{} {
	set := make(map[rune]struct{}, len(s))
	for _, r := range s {
		set[r] = struct{}{}
	}
	return set
}

func jaccard(a, b map[rune]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for r := range a {
		if _, ok := b[r]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// episodeBundle builds the bundle for a resolved episode row.
func episodeBundle(p *Podcast, ep *Episode) *Bundle {
	b := &Bundle{
		EpisodeID:     ep.EpisodeID,
		PodcastID:     p.PodcastID,
		PodcastName:   p.PodcastName,
		EpisodeTitle:  ep.EpisodeTitle,
		Author:        p.Author,
		Category:      p.Category,
		Duration:      ep.Duration,
		PublishedDate: ep.PublishedDate,
		Language:      firstLanguage(ep.Languages),
		AppleRating:   p.AppleRating,
	}
	return b.coerce()
}

// podcastFallback builds the podcast-level bundle used when no episode row
// matches: average duration across the podcast, earliest published date,
// EpisodeID 0 so downstream can tell resolved from unresolved rows.
func podcastFallback(p *Podcast, episodes []Episode, titleHint string) *Bundle {
	b := &Bundle{
		EpisodeID:     SentinelEpisode,
		PodcastID:     p.PodcastID,
		PodcastName:   p.PodcastName,
		EpisodeTitle:  titleHint,
		Author:        p.Author,
		Category:      p.Category,
		Duration:      averageDuration(episodes),
		PublishedDate: earliestDate(episodes),
		AppleRating:   p.AppleRating,
	}
	for _, ep := range episodes {
		if lang := firstLanguage(ep.Languages); lang != "" {
			b.Language = lang
			break
		}
	}
	return b.coerce()
}

// sentinelBundle is the last resort when the podcast row itself is gone.
func sentinelBundle(podcastID int64, titleHint string) *Bundle {
	b := &Bundle{
		EpisodeID:    SentinelEpisode,
		PodcastID:    podcastID,
		EpisodeTitle: titleHint,
	}
	return b.coerce()
}

// averageDuration averages the episode durations that parse as a plain
// minute count; anything else falls through to the sentinel.
func averageDuration(episodes []Episode) string {
	var sum, n int
	for _, ep := range episodes {
		var mins int
		if _, err := fmt.Sscanf(strings.TrimSpace(ep.Duration), "%d", &mins); err == nil && mins > 0 {
			sum += mins
			n++
		}
	}
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", sum/n)
}

func earliestDate(episodes []Episode) string {
	earliest := ""
	for _, ep := range episodes {
		d := strings.TrimSpace(ep.PublishedDate)
		if d == "" {
			continue
		}
		if earliest == "" || d < earliest {
			earliest = d
		}
	}
	return earliest
}

func firstLanguage(languages string) string {
	for _, part := range strings.Split(languages, ",") {
		if p := strings.TrimSpace(part); p != "" {
			return p
		}
	}
	return ""
}
