// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
	"github.com/JakeFAU/realtime-news-ingest/internal/policy/ratelimit"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Referrer       string
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Fetcher implements crawler.Fetcher using the Colly collector. Every attempt
// first waits on the shared gate.
type Fetcher struct {
	cfg           Config
	gate          ratelimit.Gate
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. A nil gate disables pacing.
func New(cfg Config, gate ratelimit.Gate, logger *zap.Logger) *Fetcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if gate == nil {
		gate = ratelimit.NewSlotGate(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.WithTransport(newHTTPTransport())
	// Attempts are bounded by their context instead.
	c.SetRequestTimeout(0)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Fetcher{
		cfg:           cfg,
		gate:          gate,
		baseCollector: c,
		logger:        logger.Named("fetcher"),
	}
}

// Fetch GETs rawURL and parses the body, whatever the status code. Transport
// failures and timeouts are retried with exponential backoff; the error
// returned after the last attempt wraps crawler.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*goquery.Document, error) {
	if err := validateURL(rawURL); err != nil {
		metrics.ObserveFetch(rawURL, "invalid")
		return nil, fmt.Errorf("%w: %w", crawler.ErrFetch, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var (
		doc      *goquery.Document
		attempts int
	)
	operation := func() error {
		attempts++
		if err := f.gate.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		d, err := f.fetchOnce(ctx, rawURL, timeout)
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		doc = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		metrics.ObserveFetchRetry(rawURL)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, f.policy(ctx), notify); err != nil {
		metrics.ObserveFetch(rawURL, "error")
		return nil, fmt.Errorf("%w: %s after %d attempt(s): %w", crawler.ErrFetch, rawURL, attempts, err)
	}
	metrics.ObserveFetch(rawURL, "ok")
	return doc, nil
}

func (f *Fetcher) policy(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.cfg.BackoffInitial
	eb.Multiplier = 2
	eb.MaxInterval = f.cfg.BackoffMax
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	retries := uint64(f.cfg.MaxAttempts - 1) //nolint:gosec // MaxAttempts is at least 1
	return backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string, timeout time.Duration) (*goquery.Document, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		doc      *goquery.Document
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = attemptCtx
	f.configureCollectorHooks(collector, rawURL, &doc, &fetchErr)

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("colly visit failed: %w", err)
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	if doc == nil {
		return nil, errors.New("colly returned no response")
	}
	return doc, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	doc **goquery.Document,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.UserAgent != "" {
			r.Headers.Set("User-Agent", f.cfg.UserAgent)
		}
		if f.cfg.Referrer != "" {
			r.Headers.Set("Referer", f.cfg.Referrer)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			*fetchErr = fmt.Errorf("parse html: %w", err)
			return
		}
		if r.Request != nil {
			parsed.Url = r.Request.URL
		}
		*doc = parsed
		f.logger.Debug("fetched page",
			zap.String("url", rawURL),
			zap.Int("status", r.StatusCode),
			zap.Int("bytes", len(r.Body)),
		)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

// retryable treats transport failures and per-attempt timeouts as transient.
// Cancellation of the caller's context is never retried.
func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported url %q", rawURL)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
