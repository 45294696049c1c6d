package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Gate persists candidates whose URLs are not stored yet.
//
// The existence check and the write are not atomic. The store's unique
// constraint on url decides races: a conflicting batch counts as zero saved
// and the next run picks up whatever is still missing.
type Gate struct {
	store  ArticleStore
	ids    IDGenerator
	clock  Clock
	logger *zap.Logger
}

// NewGate constructs a Gate.
func NewGate(store ArticleStore, ids IDGenerator, clock Clock, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{store: store, ids: ids, clock: clock, logger: logger.Named("gate")}
}

// Persist saves the candidates not already in the store in one bulk write and
// returns how many were saved.
func (g *Gate) Persist(ctx context.Context, candidates []Candidate) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	urls := make([]string, 0, len(candidates))
	for _, c := range candidates {
		urls = append(urls, c.URL)
	}
	existing, err := g.store.FindExistingURLs(ctx, urls)
	if err != nil {
		return 0, fmt.Errorf("find existing urls: %w", err)
	}

	now := g.clock.Now()
	toSave := make([]Article, 0, len(candidates))
	batch := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := existing[c.URL]; ok {
			continue
		}
		if _, ok := batch[c.URL]; ok {
			continue
		}
		batch[c.URL] = struct{}{}
		id, err := g.ids.NewID()
		if err != nil {
			return 0, fmt.Errorf("generate article id: %w", err)
		}
		toSave = append(toSave, newArticle(id, c, now))
	}
	if len(toSave) == 0 {
		return 0, nil
	}

	saved, err := g.store.SaveAll(ctx, toSave)
	if errors.Is(err, ErrDuplicateURL) {
		metrics.ObservePersistConflict()
		g.logger.Warn("unique url conflict, batch skipped",
			zap.Int("batch_size", len(toSave)),
			zap.Error(err),
		)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("save articles: %w", err)
	}
	return saved, nil
}

func newArticle(id string, c Candidate, createdAt time.Time) Article {
	return Article{
		ID:           id,
		Section:      c.Section,
		Title:        c.Title,
		Content:      c.Content,
		URL:          c.URL,
		ThumbnailURL: c.ThumbnailURL,
		Source:       c.Source(),
		Publisher:    c.Publisher,
		PublishedAt:  c.PublishedAt,
		CreatedAt:    createdAt,
	}
}
