package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/realtime-news-ingest/internal/extract"
)

// ArticleStore persists articles keyed by their unique URL.
type ArticleStore interface {
	ExistsByURL(ctx context.Context, url string) (bool, error)
	FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	// SaveAll writes every article in one transaction and returns the number
	// written. A unique violation aborts the whole batch with ErrDuplicateURL.
	SaveAll(ctx context.Context, articles []Article) (int, error)
}

// Fetcher fetches a URL and returns the parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*goquery.Document, error)
}

// DetailParser turns an article page into its extracted fields.
type DetailParser interface {
	Parse(doc *goquery.Document) extract.Detail
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces article IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
