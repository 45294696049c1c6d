package crawler

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-news-ingest/internal/extract"
)

const (
	linkSelector      = "a[href]"
	titleHintSelector = ".sa_text_title, .sa_text_strong, a[class*=title], a[href]"
)

// BuilderConfig controls how listing items become candidates.
type BuilderConfig struct {
	// Host is the site host; links must point at it or a subdomain.
	Host              string
	DetailTimeout     time.Duration
	DetailConcurrency int
}

// Builder turns listing items into candidates by fetching each item's
// detail page.
type Builder struct {
	fetcher Fetcher
	parser  DetailParser
	cfg     BuilderConfig
	logger  *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(fetcher Fetcher, parser DetailParser, cfg BuilderConfig, logger *zap.Logger) *Builder {
	if cfg.DetailConcurrency <= 0 {
		cfg.DetailConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		fetcher: fetcher,
		parser:  parser,
		cfg:     cfg,
		logger:  logger.Named("builder"),
	}
}

type listingItem struct {
	url       string
	titleHint string
	thumbHint string
}

// Build returns at most one candidate per distinct URL, in the order each URL
// was first seen. Links are resolved against base. Items whose link is
// missing, off-site, already seen, or whose detail page cannot be fetched are
// skipped.
func (b *Builder) Build(ctx context.Context, items []*goquery.Selection, base *url.URL, def Section) []Candidate {
	listing := b.collect(items, base)
	if len(listing) == 0 {
		return nil
	}

	details := make([]*extract.Detail, len(listing))
	var g errgroup.Group
	g.SetLimit(b.cfg.DetailConcurrency)
	for i, item := range listing {
		g.Go(func() error {
			details[i] = b.detail(ctx, item.url)
			return nil
		})
	}
	_ = g.Wait()

	candidates := make([]Candidate, 0, len(listing))
	for i, item := range listing {
		d := details[i]
		if d == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:          item.url,
			Section:      DetectSection(item.url, def),
			Title:        firstNonEmpty(d.Title, item.titleHint),
			Content:      d.Content,
			ThumbnailURL: firstNonEmpty(d.ThumbnailURL, item.thumbHint),
			Publisher:    d.Publisher,
			Byline:       d.Byline,
			PublishedAt:  d.PublishedAt,
		})
	}
	return candidates
}

func (b *Builder) collect(items []*goquery.Selection, base *url.URL) []listingItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]listingItem, 0, len(items))
	for _, item := range items {
		href, ok := item.Find(linkSelector).First().Attr("href")
		if !ok {
			continue
		}
		link, err := ResolveLink(base, href)
		if err != nil {
			b.logger.Debug("skipping listing item", zap.String("href", href), zap.Error(err))
			continue
		}
		if !HostAllowed(link.Hostname(), b.cfg.Host) {
			b.logger.Debug("skipping off-site link", zap.String("url", link.String()))
			continue
		}
		key := link.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, listingItem{
			url:       key,
			titleHint: strings.Join(strings.Fields(item.Find(titleHintSelector).First().Text()), " "),
			thumbHint: thumbnailHint(item, base),
		})
	}
	return out
}

func (b *Builder) detail(ctx context.Context, rawURL string) (d *extract.Detail) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("detail parse panicked", zap.String("url", rawURL), zap.Any("panic", r))
			d = nil
		}
	}()
	doc, err := b.fetcher.Fetch(ctx, rawURL, b.cfg.DetailTimeout)
	if err != nil {
		b.logger.Warn("skipping article", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	parsed := b.parser.Parse(doc)
	return &parsed
}

func thumbnailHint(item *goquery.Selection, base *url.URL) string {
	img := item.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	src := strings.TrimSpace(img.AttrOr("data-src", ""))
	if src == "" {
		src = strings.TrimSpace(img.AttrOr("src", ""))
	}
	if src == "" {
		return ""
	}
	u, err := ResolveLink(base, src)
	if err != nil {
		return src
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// take returns up to n matches of selector within doc.
func take(doc *goquery.Document, selector string, n int) []*goquery.Selection {
	if n <= 0 {
		return nil
	}
	out := make([]*goquery.Selection, 0, n)
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = append(out, s)
		return len(out) < n
	})
	return out
}
