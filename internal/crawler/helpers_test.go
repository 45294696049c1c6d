package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-news-ingest/internal/extract"
)

var kst = time.FixedZone("KST", 9*60*60)

var testNow = time.Date(2025, 12, 11, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct {
	mu  sync.Mutex
	n   int
	err error
}

func (s *seqIDs) NewID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

// fakeFetcher serves canned pages keyed by URL.
type fakeFetcher struct {
	pages  map[string]string
	errs   map[string]error
	panics map[string]bool
	delay  func(rawURL string) time.Duration

	mu          sync.Mutex
	calls       []string
	timeouts    map[string]time.Duration
	inFlight    int
	maxInFlight int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:    map[string]string{},
		errs:     map[string]error{},
		panics:   map[string]bool{},
		timeouts: map[string]time.Duration{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, timeout time.Duration) (*goquery.Document, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	f.timeouts[rawURL] = timeout
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		time.Sleep(f.delay(rawURL))
	}
	if f.panics[rawURL] {
		panic("boom: " + rawURL)
	}
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	page, ok := f.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w: no page for %s", ErrFetch, rawURL)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	doc.Url, _ = url.Parse(rawURL)
	return doc, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) called(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == rawURL {
			return true
		}
	}
	return false
}

// fakeStore records calls and keeps saved URLs as existing.
type fakeStore struct {
	mu        sync.Mutex
	existing  map[string]struct{}
	saved     []Article
	findCalls int
	saveCalls int
	findErr   error
	saveErr   error
}

func newFakeStore(existing ...string) *fakeStore {
	s := &fakeStore{existing: map[string]struct{}{}}
	for _, u := range existing {
		s.existing[u] = struct{}{}
	}
	return s
}

func (s *fakeStore) ExistsByURL(_ context.Context, u string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.existing[u]
	return ok, nil
}

func (s *fakeStore) FindExistingURLs(_ context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := map[string]struct{}{}
	for _, u := range urls {
		if _, ok := s.existing[u]; ok {
			out[u] = struct{}{}
		}
	}
	return out, nil
}

func (s *fakeStore) SaveAll(_ context.Context, articles []Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCalls++
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	for _, a := range articles {
		s.existing[a.URL] = struct{}{}
	}
	s.saved = append(s.saved, articles...)
	return len(articles), nil
}

func testParser() *extract.Parser {
	return extract.NewParser(extract.DefaultRules(), extract.NewDateNormalizer(kst, func() time.Time { return testNow }))
}

func detailPage(title, byline, body string) string {
	var b strings.Builder
	b.WriteString(`<html><head><meta property="og:image" content="https://img.example.com/og.jpg"></head><body>`)
	if title != "" {
		b.WriteString(`<h2 class="media_end_head_headline">` + title + `</h2>`)
	}
	b.WriteString(`<span class="media_end_head_info_datestamp_time" data-date-time="2025-12-11 14:30:00"></span>`)
	b.WriteString(`<div class="media_end_head_top_logo"><img title="테스트일보"></div>`)
	if byline != "" {
		b.WriteString(`<em class="media_end_head_journalist_name">` + byline + `</em>`)
	}
	b.WriteString(`<article id="dic_area">` + body + `</article></body></html>`)
	return b.String()
}

func listItem(href, title, img string) string {
	var b strings.Builder
	b.WriteString(`<li class="sa_item">`)
	if img != "" {
		b.WriteString(img)
	}
	if href != "" {
		b.WriteString(`<a href="` + href + `" class="sa_text_title"><strong class="sa_text_strong">` + title + `</strong></a>`)
	} else {
		b.WriteString(`<span class="sa_text_strong">` + title + `</span>`)
	}
	b.WriteString(`</li>`)
	return b.String()
}

func listingItems(t *testing.T, html string) ([]*goquery.Selection, *url.URL) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	base, err := url.Parse("https://news.example.com/section/100")
	require.NoError(t, err)
	return take(doc, ListSelector, 25), base
}
