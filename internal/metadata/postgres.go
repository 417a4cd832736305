package metadata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads the podcasts and episodes relations through a pgx
// connection pool. The store is read-only from this process.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects to the metadata database and verifies the
// connection.
func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresSource{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// Podcast returns one podcast row.
func (s *PostgresSource) Podcast(ctx context.Context, podcastID int64) (*Podcast, error) {
	const q = `
		SELECT podcast_id, COALESCE(podcast_name, ''), COALESCE(author, ''),
		       COALESCE(category, ''), COALESCE(apple_rating, 0)
		FROM podcasts
		WHERE podcast_id = $1`

	var p Podcast
	err := s.pool.QueryRow(ctx, q, podcastID).Scan(
		&p.PodcastID, &p.PodcastName, &p.Author, &p.Category, &p.AppleRating)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPodcastNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query podcast %d: %w", podcastID, err)
	}
	return &p, nil
}

// Episodes returns all episode rows for a podcast in table order.
func (s *PostgresSource) Episodes(ctx context.Context, podcastID int64) ([]Episode, error) {
	const q = `
		SELECT episode_id, podcast_id, COALESCE(episode_title, ''),
		       COALESCE(duration, ''), COALESCE(published_date, ''),
		       COALESCE(languages, ''), COALESCE(apple_episodes_ranking, 0),
		       COALESCE(created_at::text, '')
		FROM episodes
		WHERE podcast_id = $1
		ORDER BY episode_id`

	rows, err := s.pool.Query(ctx, q, podcastID)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes for podcast %d: %w", podcastID, err)
	}
	defer rows.Close()

	var episodes []Episode
	for rows.Next() {
		var ep Episode
		if err := rows.Scan(&ep.EpisodeID, &ep.PodcastID, &ep.EpisodeTitle,
			&ep.Duration, &ep.PublishedDate, &ep.Languages,
			&ep.AppleEpisodesRanking, &ep.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %w", err)
		}
		episodes = append(episodes, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate episode rows: %w", err)
	}
	return episodes, nil
}

// Ensure PostgresSource implements Source.
var _ Source = (*PostgresSource)(nil)
