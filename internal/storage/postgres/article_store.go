// Package postgres provides a Postgres-backed ArticleStore built on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

const (
	defaultTable       = "articles"
	uniqueViolationErr = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for article rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// ArticleStore implements crawler.ArticleStore on a pgx pool.
type ArticleStore struct {
	pool  pool
	table string
}

// NewArticleStore connects to Postgres using the provided config.
func NewArticleStore(ctx context.Context, cfg Config) (*ArticleStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewArticleStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewArticleStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewArticleStoreWithPool(p pool, table string) (*ArticleStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Migrate creates the article table when it does not exist.
func (s *ArticleStore) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            UUID PRIMARY KEY,
	section       TEXT NOT NULL,
	title         TEXT NOT NULL,
	content       TEXT,
	url           TEXT NOT NULL,
	thumbnail_url TEXT,
	source        TEXT NOT NULL,
	publisher     TEXT,
	published_at  TIMESTAMPTZ NOT NULL,
	likes         BIGINT NOT NULL DEFAULT 0,
	dislikes      BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	CONSTRAINT %s_url_key UNIQUE (url)
)`, s.table, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// ExistsByURL reports whether an article with url is stored.
func (s *ArticleStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE url = $1)`, s.table)
	var exists bool
	if err := s.pool.QueryRow(ctx, query, url).Scan(&exists); err != nil {
		return false, fmt.Errorf("check article url: %w", err)
	}
	return exists, nil
}

// FindExistingURLs returns the subset of urls already stored.
func (s *ArticleStore) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(urls) == 0 {
		return found, nil
	}
	query := fmt.Sprintf(`SELECT url FROM %s WHERE url = ANY($1)`, s.table)
	rows, err := s.pool.Query(ctx, query, urls)
	if err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan existing urls: %w", err)
	}
	for _, u := range existing {
		found[u] = struct{}{}
	}
	return found, nil
}

// SaveAll inserts every article in a single transaction. A unique violation
// rolls the batch back and is reported as crawler.ErrDuplicateURL.
func (s *ArticleStore) SaveAll(ctx context.Context, articles []crawler.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	section,
	title,
	content,
	url,
	thumbnail_url,
	source,
	publisher,
	published_at,
	likes,
	dislikes,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	for _, a := range articles {
		if _, err := tx.Exec(ctx, query, articleArgs(a)...); err != nil {
			_ = tx.Rollback(ctx)
			return 0, insertError(a.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, insertError("", err)
	}
	return len(articles), nil
}

func articleArgs(a crawler.Article) []any {
	return []any{
		a.ID,
		string(a.Section),
		a.Title,
		nullable(a.Content),
		a.URL,
		nullable(a.ThumbnailURL),
		a.Source,
		nullable(a.Publisher),
		a.PublishedAt,
		a.Likes,
		a.Dislikes,
		a.CreatedAt,
	}
}

func insertError(url string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationErr {
		return fmt.Errorf("%w: %s (%s)", crawler.ErrDuplicateURL, url, pgErr.ConstraintName)
	}
	return fmt.Errorf("insert articles: %w", err)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
