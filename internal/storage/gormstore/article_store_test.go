package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

func newMockStore(t *testing.T) (*ArticleStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store, err := New(db, "")
	require.NoError(t, err)
	return store, mock
}

func sampleArticles() []crawler.Article {
	published := time.Date(2025, 12, 11, 5, 30, 0, 0, time.UTC)
	created := time.Date(2025, 12, 11, 6, 0, 0, 0, time.UTC)
	return []crawler.Article{
		{
			ID: "0193b6f0-0000-7000-8000-000000000001", Section: crawler.SectionSocial,
			Title: "첫 기사", URL: "https://news.example.com/a", Source: "홍길동",
			Content: "본문", PublishedAt: published, CreatedAt: created,
		},
		{
			ID: "0193b6f0-0000-7000-8000-000000000002", Section: crawler.SectionSocial,
			Title: "둘째 기사", URL: "https://news.example.com/b", Source: crawler.DefaultSource,
			PublishedAt: published, CreatedAt: created,
		},
	}
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "articles")
	require.Error(t, err)

	store, _ := newMockStore(t)
	_, err = New(store.db, "bad-name")
	require.Error(t, err)

	_, err = Open("", "")
	require.Error(t, err)
}

func TestExistsByURL(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "articles" WHERE url = \$1`).
		WithArgs("https://news.example.com/a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := store.ExistsByURL(context.Background(), "https://news.example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExistingURLs(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT .*url.* FROM "articles" WHERE url IN \(\$1,\$2\)`).
		WithArgs("https://news.example.com/a", "https://news.example.com/b").
		WillReturnRows(sqlmock.NewRows([]string{"url"}).AddRow("https://news.example.com/a"))

	found, err := store.FindExistingURLs(context.Background(), []string{
		"https://news.example.com/a",
		"https://news.example.com/b",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"https://news.example.com/a": {}}, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindExistingURLsEmptyInput(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	found, err := store.FindExistingURLs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAllInsertsBatchInTransaction(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "articles"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := store.SaveAll(context.Background(), sampleArticles())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAllMapsUniqueViolation(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "articles"`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_articles_url"})
	mock.ExpectRollback()

	n, err := store.SaveAll(context.Background(), sampleArticles())
	require.ErrorIs(t, err, crawler.ErrDuplicateURL)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAllPropagatesOtherErrors(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "articles"`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.SaveAll(context.Background(), sampleArticles())
	require.Error(t, err)
	assert.NotErrorIs(t, err, crawler.ErrDuplicateURL)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToRowNullsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	rows := sampleArticles()
	first := toRow(rows[0])
	require.NotNil(t, first.Content)
	assert.Equal(t, "본문", *first.Content)
	assert.Nil(t, first.ThumbnailURL)

	second := toRow(rows[1])
	assert.Nil(t, second.Content)
	assert.Nil(t, second.Publisher)
	assert.Equal(t, "SOCIAL", second.Section)
}
