package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanukirift/novelpress/internal/novel"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ChapterStoreConfig controls the Postgres connection pool used for
// published chapters.
type ChapterStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ChapterStore publishes translated chapters into Postgres.
type ChapterStore struct {
	pool  execCloser
	table string
}

// NewChapterStore creates a Postgres-backed ChapterStore using the provided config.
func NewChapterStore(ctx context.Context, cfg ChapterStoreConfig) (*ChapterStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "chapters"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ChapterStore{pool: pool, table: table}, nil
}

// NewChapterStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewChapterStoreWithPool(pool execCloser, table string) (*ChapterStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "chapters"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ChapterStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ChapterStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PublishChapter upserts one translated chapter, keyed by work slug and
// chapter slug so re-translation overwrites the previous row.
func (s *ChapterStore) PublishChapter(ctx context.Context, workSlug string, volume int, ch novel.ChapterEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("chapter store is not configured")
	}
	if workSlug == "" {
		return fmt.Errorf("work slug is required")
	}
	if ch.Slug == "" {
		return fmt.Errorf("chapter slug is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	work_slug,
	chapter_slug,
	volume_number,
	serial,
	number,
	title,
	body_text,
	body_markdown,
	premium,
	source_url,
	source_episode_id,
	published_at,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
ON CONFLICT (work_slug, chapter_slug) DO UPDATE SET
	volume_number = EXCLUDED.volume_number,
	serial = EXCLUDED.serial,
	number = EXCLUDED.number,
	title = EXCLUDED.title,
	body_text = EXCLUDED.body_text,
	body_markdown = EXCLUDED.body_markdown,
	premium = EXCLUDED.premium,
	source_url = EXCLUDED.source_url,
	source_episode_id = EXCLUDED.source_episode_id,
	published_at = EXCLUDED.published_at,
	updated_at = EXCLUDED.updated_at`, s.table)

	args := []any{
		workSlug,
		ch.Slug,
		volume,
		ch.Serial,
		ch.Number,
		ch.Title,
		ch.RichText.Text,
		ch.RichText.Markdown,
		ch.Premium,
		ch.Source.URL,
		ch.Source.EpisodeID,
		ch.PublishedAt,
		ch.UpdatedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("publish chapter: %w", err)
	}
	return nil
}
