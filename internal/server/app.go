// Package server builds the ingestion service from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/api"
	"github.com/JakeFAU/realtime-news-ingest/internal/clock/system"
	"github.com/JakeFAU/realtime-news-ingest/internal/config"
	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
	"github.com/JakeFAU/realtime-news-ingest/internal/extract"
	collyfetcher "github.com/JakeFAU/realtime-news-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-news-ingest/internal/id/uuid"
	"github.com/JakeFAU/realtime-news-ingest/internal/logging"
	"github.com/JakeFAU/realtime-news-ingest/internal/metrics"
	"github.com/JakeFAU/realtime-news-ingest/internal/policy/ratelimit"
	"github.com/JakeFAU/realtime-news-ingest/internal/scheduler"
	"github.com/JakeFAU/realtime-news-ingest/internal/storage/gormstore"
	memorystore "github.com/JakeFAU/realtime-news-ingest/internal/storage/memory"
	pgstore "github.com/JakeFAU/realtime-news-ingest/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	store        crawler.ArticleStore
	orchestrator *crawler.Orchestrator
	scheduler    *scheduler.Scheduler
	closers      []func() error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("base_url", cfg.Site.BaseURL),
		zap.String("backend", cfg.Database.Backend),
		zap.String("limiter", cfg.Fetch.Limiter),
		zap.Float64("requests_per_second", cfg.Fetch.RequestsPerSecond),
	)

	if err := app.setupStore(ctx); err != nil {
		return nil, err
	}

	pacing, err := ratelimit.New(ratelimit.Kind(cfg.Fetch.Limiter), cfg.Fetch.RequestsPerSecond)
	if err != nil {
		app.closeQuietly()
		return nil, fmt.Errorf("rate gate init failed: %w", err)
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Site.UserAgent,
		Referrer:       cfg.Site.Referrer,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BackoffInitial: cfg.Fetch.BackoffInitial,
		BackoffMax:     cfg.Fetch.BackoffMax,
	}, pacing, logger)

	loc := cfg.Location()
	parser := extract.NewParser(extract.DefaultRules(), extract.NewDateNormalizer(loc, system.NewIn(loc).Now))
	builder := crawler.NewBuilder(fetcher, parser, crawler.BuilderConfig{
		Host:              cfg.Site.Host,
		DetailTimeout:     cfg.Fetch.DetailTimeout,
		DetailConcurrency: cfg.Crawl.DetailConcurrency,
	}, logger)

	clock := system.New()
	gate := crawler.NewGate(app.store, uuid.New(), clock, logger)
	app.orchestrator = crawler.NewOrchestrator(fetcher, builder, gate, clock, crawler.OrchestratorConfig{
		BaseURL:         cfg.Site.BaseURL,
		ListingTimeout:  cfg.Fetch.ListingTimeout,
		MaxListItems:    cfg.Crawl.MaxListItems,
		MaxPopularItems: cfg.Crawl.MaxPopularItems,
	}, logger)

	app.scheduler, err = scheduler.New(app.orchestrator, scheduler.Config{
		Interval:   cfg.Schedule.Interval,
		Cron:       cfg.Schedule.Cron,
		RunOnStart: cfg.Schedule.RunOnStart,
	}, logger)
	if err != nil {
		app.closeQuietly()
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}
	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	db := a.cfg.Database
	switch db.Backend {
	case config.BackendPostgres:
		store, err := pgstore.NewArticleStore(ctx, pgstore.Config{
			DSN:             db.DSN,
			Table:           db.Table,
			MaxConns:        db.MaxConns,
			MinConns:        db.MinConns,
			MaxConnLifetime: db.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if db.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				a.closeQuietly()
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		a.store = store
	case config.BackendGorm:
		store, err := gormstore.Open(db.DSN, db.Table)
		if err != nil {
			return fmt.Errorf("gorm store init failed: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if db.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				a.closeQuietly()
				return fmt.Errorf("gorm migrate failed: %w", err)
			}
		}
		a.store = store
	default:
		a.logger.Warn("using in-memory article store; articles are lost on exit")
		a.store = memorystore.NewArticleStore()
	}
	a.logger.Info("article store ready", zap.String("backend", db.Backend), zap.String("table", db.Table))
	return nil
}

// RunOnce performs a single ingestion run.
func (a *App) RunOnce(ctx context.Context) (crawler.RunReport, error) {
	report, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		return crawler.RunReport{}, fmt.Errorf("run once: %w", err)
	}
	return report, nil
}

// Run starts the scheduler and the ops server and blocks until ctx is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(ctx, a.orchestrator, a.scheduler, api.Config{APIKey: a.cfg.Server.APIKey}, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.scheduler.Start(ctx); err != nil {
			a.logger.Error("scheduler stopped with error", zap.Error(err))
			stop()
		}
	}()

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	a.scheduler.Wait()
	return a.Close()
}

// Close releases the store and flushes the logger.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.logger.Info("shutdown complete")
	_ = a.logger.Sync()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close app: %w", err)
	}
	return nil
}

func (a *App) closeQuietly() {
	if err := a.Close(); err != nil {
		a.logger.Warn("cleanup after failed build", zap.Error(err))
	}
}
