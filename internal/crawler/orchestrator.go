package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
)

// Listing page regions queried for each section.
const (
	ListSelector    = ".sa_item, .sa_item_flex, .section_article .sa_item"
	PopularSelector = ".section_article.as_main_popular .sa_item, .section_main_popular .sa_item"
)

// Run outcomes reported to metrics.
const (
	RunStatusOK      = "ok"
	RunStatusPartial = "partial"
	RunStatusFailed  = "failed"
)

// OrchestratorConfig controls a crawl run.
type OrchestratorConfig struct {
	BaseURL         string
	ListingTimeout  time.Duration
	MaxListItems    int
	MaxPopularItems int
	// Sections defaults to the package Sections table.
	Sections []SectionMapping
}

// Orchestrator drives one crawl run across all sections.
type Orchestrator struct {
	fetcher Fetcher
	builder *Builder
	gate    *Gate
	clock   Clock
	cfg     OrchestratorConfig
	logger  *zap.Logger

	mu   sync.RWMutex
	last *RunReport
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(
	fetcher Fetcher,
	builder *Builder,
	gate *Gate,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if len(cfg.Sections) == 0 {
		cfg.Sections = Sections
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		fetcher: fetcher,
		builder: builder,
		gate:    gate,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
	}
}

// Run crawls every section in order. A failing section is logged and
// recorded in the report; it never stops the remaining sections.
func (o *Orchestrator) Run(ctx context.Context) RunReport {
	report := RunReport{StartedAt: o.clock.Now()}
	o.logger.Info("ingestion run started", zap.Int("sections", len(o.cfg.Sections)))

	for _, m := range o.cfg.Sections {
		sr := o.runSection(ctx, m)
		report.Sections = append(report.Sections, sr)
		report.TotalSaved += sr.Saved
		metrics.ObserveSection(string(m.Section), sr.Candidates, sr.Saved, sr.Error != "")
	}

	report.FinishedAt = o.clock.Now()
	status := runStatus(report)
	metrics.ObserveRun(status, report.FinishedAt.Sub(report.StartedAt))
	o.logger.Info("ingestion run finished",
		zap.Int("total_saved", report.TotalSaved),
		zap.Int("failed_sections", report.Failed()),
		zap.String("status", status),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	o.mu.Lock()
	o.last = &report
	o.mu.Unlock()
	return report
}

// LastReport returns the report of the most recent completed run.
func (o *Orchestrator) LastReport() (RunReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return RunReport{}, false
	}
	return *o.last, true
}

func (o *Orchestrator) runSection(ctx context.Context, m SectionMapping) (sr SectionReport) {
	sr = SectionReport{SectionID: m.ID, Section: m.Section}
	logger := o.logger.With(zap.String("section", string(m.Section)), zap.String("section_id", m.ID))
	defer func() {
		if r := recover(); r != nil {
			sr.Error = fmt.Sprintf("panic: %v", r)
			logger.Error("section panicked", zap.Any("panic", r))
		}
	}()

	candidates, saved, err := o.crawlSection(ctx, m)
	sr.Candidates = candidates
	sr.Saved = saved
	if err != nil {
		sr.Error = err.Error()
		logger.Error("section failed", zap.Error(err))
		return sr
	}
	if saved > 0 {
		logger.Info("section saved", zap.Int("saved", saved), zap.Int("candidates", candidates))
	} else {
		logger.Debug("section had nothing new", zap.Int("candidates", candidates))
	}
	return sr
}

// crawlSection runs FETCH_LISTING, BUILD_CANDIDATES and PERSIST for one section.
func (o *Orchestrator) crawlSection(ctx context.Context, m SectionMapping) (int, int, error) {
	listingURL := SectionURL(o.cfg.BaseURL, m.ID)
	doc, err := o.fetcher.Fetch(ctx, listingURL, o.cfg.ListingTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch listing: %w", err)
	}
	if doc == nil {
		return 0, 0, errors.New("fetch listing: empty document")
	}

	base := doc.Url
	if base == nil {
		if base, err = url.Parse(listingURL); err != nil {
			return 0, 0, fmt.Errorf("parse listing url: %w", err)
		}
	}

	items := take(doc, ListSelector, o.cfg.MaxListItems)
	items = append(items, take(doc, PopularSelector, o.cfg.MaxPopularItems)...)

	candidates := o.builder.Build(ctx, items, base, m.Section)
	saved, err := o.gate.Persist(ctx, candidates)
	if err != nil {
		return len(candidates), 0, fmt.Errorf("persist: %w", err)
	}
	return len(candidates), saved, nil
}

// SectionURL returns the listing page URL for a section identifier.
func SectionURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/section/" + id
}

func runStatus(r RunReport) string {
	switch failed := r.Failed(); {
	case failed == 0:
		return RunStatusOK
	case failed == len(r.Sections):
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}
