// Package memory stores articles in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

// ArticleStore implements crawler.ArticleStore with a url-keyed map.
type ArticleStore struct {
	mu       sync.RWMutex
	articles map[string]crawler.Article
	order    []string
}

// NewArticleStore constructs an ArticleStore, optionally pre-seeded.
func NewArticleStore(seed ...crawler.Article) *ArticleStore {
	s := &ArticleStore{articles: make(map[string]crawler.Article)}
	for _, a := range seed {
		if _, ok := s.articles[a.URL]; ok {
			continue
		}
		s.articles[a.URL] = a
		s.order = append(s.order, a.URL)
	}
	return s
}

// ExistsByURL reports whether an article with url is stored.
func (s *ArticleStore) ExistsByURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.articles[url]
	return ok, nil
}

// FindExistingURLs returns the subset of urls already stored.
func (s *ArticleStore) FindExistingURLs(_ context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.articles[u]; ok {
			found[u] = struct{}{}
		}
	}
	return found, nil
}

// SaveAll stores every article or none of them. Any URL already stored, or
// repeated within the batch, fails the batch with crawler.ErrDuplicateURL.
func (s *ArticleStore) SaveAll(_ context.Context, articles []crawler.Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(articles))
	for _, a := range articles {
		if _, ok := s.articles[a.URL]; ok {
			return 0, fmt.Errorf("%w: %s", crawler.ErrDuplicateURL, a.URL)
		}
		if _, ok := batch[a.URL]; ok {
			return 0, fmt.Errorf("%w: %s", crawler.ErrDuplicateURL, a.URL)
		}
		batch[a.URL] = struct{}{}
	}
	for _, a := range articles {
		s.articles[a.URL] = a
		s.order = append(s.order, a.URL)
	}
	return len(articles), nil
}

// List returns a copy of the stored articles in insertion order.
func (s *ArticleStore) List() []crawler.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Article, 0, len(s.order))
	for _, u := range s.order {
		out = append(out, s.articles[u])
	}
	return out
}

// Len returns the number of stored articles.
func (s *ArticleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}
