// Package gormstore provides an ArticleStore backed by gorm and its Postgres driver.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

const defaultTable = "articles"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// articleRow is the gorm model for one stored article.
type articleRow struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	Section      string    `gorm:"size:32;not null;index"`
	Title        string    `gorm:"not null"`
	Content      *string   `gorm:"type:text"`
	URL          string    `gorm:"size:1024;not null;uniqueIndex"`
	ThumbnailURL *string   `gorm:"size:1024"`
	Source       string    `gorm:"size:128;not null"`
	Publisher    *string   `gorm:"size:128"`
	PublishedAt  time.Time `gorm:"not null;index"`
	Likes        int64     `gorm:"not null"`
	Dislikes     int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

// ArticleStore implements crawler.ArticleStore with gorm.
type ArticleStore struct {
	db    *gorm.DB
	table string
}

// Open connects to Postgres through gorm.
func Open(dsn, table string) (*ArticleStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return New(db, table)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, table string) (*ArticleStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ArticleStore{db: db, table: table}, nil
}

// Migrate creates or updates the article table.
func (s *ArticleStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&articleRow{}); err != nil {
		return fmt.Errorf("auto migrate %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *ArticleStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close sql db: %w", err)
	}
	return nil
}

// ExistsByURL reports whether an article with url is stored.
func (s *ArticleStore) ExistsByURL(ctx context.Context, url string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(s.table).Where("url = ?", url).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check article url: %w", err)
	}
	return n > 0, nil
}

// FindExistingURLs returns the subset of urls already stored.
func (s *ArticleStore) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(urls) == 0 {
		return found, nil
	}
	var existing []string
	if err := s.db.WithContext(ctx).Table(s.table).Where("url IN ?", urls).Pluck("url", &existing).Error; err != nil {
		return nil, fmt.Errorf("query existing urls: %w", err)
	}
	for _, u := range existing {
		found[u] = struct{}{}
	}
	return found, nil
}

// SaveAll inserts the batch in one transaction. A unique violation rolls the
// batch back and is reported as crawler.ErrDuplicateURL.
func (s *ArticleStore) SaveAll(ctx context.Context, articles []crawler.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	rows := make([]articleRow, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, toRow(a))
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(s.table).Create(&rows).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %w", crawler.ErrDuplicateURL, err)
		}
		return 0, fmt.Errorf("insert articles: %w", err)
	}
	return len(rows), nil
}

func toRow(a crawler.Article) articleRow {
	return articleRow{
		ID:           a.ID,
		Section:      string(a.Section),
		Title:        a.Title,
		Content:      optional(a.Content),
		URL:          a.URL,
		ThumbnailURL: optional(a.ThumbnailURL),
		Source:       a.Source,
		Publisher:    optional(a.Publisher),
		PublishedAt:  a.PublishedAt,
		Likes:        a.Likes,
		Dislikes:     a.Dislikes,
		CreatedAt:    a.CreatedAt,
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
