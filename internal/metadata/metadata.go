// Package metadata resolves chunk provenance against the read-only
// relational store of podcasts and episodes.
package metadata

import (
	"context"
	"errors"
)

// Sentinels used when a field cannot be resolved. Downstream consumers
// treat EpisodeID == 0 as "metadata resolution failed".
const (
	UnknownText      = "未知"
	SentinelEpisode  = 0
	MaxShortField    = 64
	MaxTextField     = 255
)

// ErrPodcastNotFound is returned when the podcast row itself is missing.
var ErrPodcastNotFound = errors.New("podcast not found")

// Podcast mirrors the podcasts relation.
type Podcast struct {
	PodcastID   int64
	PodcastName string
	Author      string
	Category    string
	AppleRating int
}

// Episode mirrors the episodes relation.
type Episode struct {
	EpisodeID            int64
	PodcastID            int64
	EpisodeTitle         string
	Duration             string
	PublishedDate        string
	Languages            string
	AppleEpisodesRanking int
	CreatedAt            string
}

// Bundle is the full attribute set attached to every chunk. All fields are
// already coerced to their column widths and never empty: unresolvable
// values carry sentinels.
type Bundle struct {
	EpisodeID     int64
	PodcastID     int64
	PodcastName   string
	EpisodeTitle  string
	Author        string
	Category      string
	Duration      string
	PublishedDate string
	Language      string
	AppleRating   int
}

// Complete reports whether the bundle resolved to a real episode row.
func (b *Bundle) Complete() bool {
	return b.EpisodeID != SentinelEpisode &&
		b.PodcastID != 0 &&
		b.PodcastName != UnknownText &&
		b.Category != UnknownText
}

// Source abstracts the relational store so the resolver can be tested
// without a live database.
type Source interface {
	// Podcast returns one podcast row, or ErrPodcastNotFound.
	Podcast(ctx context.Context, podcastID int64) (*Podcast, error)

	// Episodes returns all episode rows for a podcast, table order.
	Episodes(ctx context.Context, podcastID int64) ([]Episode, error)
}
