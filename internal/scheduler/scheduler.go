// Package scheduler triggers ingestion runs on a fixed delay or a cron spec.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-news-ingest/internal/crawler"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("ingestion run already in progress")

// Runner performs one ingestion run.
type Runner interface {
	Run(ctx context.Context) crawler.RunReport
}

// Config controls run timing. Cron, when set, takes precedence over Interval.
type Config struct {
	// Interval is measured from the end of one run to the start of the next.
	Interval   time.Duration
	Cron       string
	RunOnStart bool
}

// Scheduler runs a Runner periodically. At most one run is active at a time.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	// mu orders TryRun's wg.Add against Start's final wg.Wait.
	mu      sync.Mutex
	stopped bool
}

// New validates cfg and constructs a Scheduler.
func New(runner Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parse cron spec %q: %w", cfg.Cron, err)
		}
	} else if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0 without a cron spec")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{runner: runner, cfg: cfg, logger: logger.Named("scheduler")}, nil
}

// Start blocks until ctx is canceled, triggering runs as configured. It
// waits for an active run to finish before returning. Once Start has
// returned, TryRun no longer starts runs.
func (s *Scheduler) Start(ctx context.Context) error {
	defer s.drain()
	if s.cfg.Cron != "" {
		return s.startCron(ctx)
	}
	return s.startFixedDelay(ctx)
}

func (s *Scheduler) startFixedDelay(ctx context.Context) error {
	s.logger.Info("fixed-delay schedule started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Bool("run_on_start", s.cfg.RunOnStart),
	)
	if s.cfg.RunOnStart {
		s.runSkippingBusy(ctx)
	}
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("schedule stopped")
			return nil
		case <-timer.C:
			s.runSkippingBusy(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Scheduler) startCron(ctx context.Context) error {
	cl := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.cfg.Cron, func() { s.runSkippingBusy(ctx) }); err != nil {
		return fmt.Errorf("schedule cron %q: %w", s.cfg.Cron, err)
	}
	s.logger.Info("cron schedule started",
		zap.String("spec", s.cfg.Cron),
		zap.Bool("run_on_start", s.cfg.RunOnStart),
	)
	c.Start()
	if s.cfg.RunOnStart {
		s.TryRun(ctx)
	}
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("schedule stopped")
	return nil
}

// RunOnce runs synchronously, or returns ErrRunInProgress if a run is active.
func (s *Scheduler) RunOnce(ctx context.Context) (crawler.RunReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		return crawler.RunReport{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.run(ctx), nil
}

func (s *Scheduler) drain() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.wg.Wait()
}

// TryRun starts a run in the background when idle and reports whether it did.
// It refuses when ctx is done or the scheduler is shutting down.
func (s *Scheduler) TryRun(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || ctx.Err() != nil {
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(ctx)
	}()
	return true
}

// Running reports whether a run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Wait blocks until background runs started by TryRun have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runSkippingBusy(ctx context.Context) {
	if _, err := s.RunOnce(ctx); errors.Is(err, ErrRunInProgress) {
		s.logger.Info("scheduled run skipped, previous run still active")
	}
}

func (s *Scheduler) run(ctx context.Context) crawler.RunReport {
	if ctx.Err() != nil {
		return crawler.RunReport{}
	}
	report := s.runner.Run(ctx)
	s.logger.Info("run complete",
		zap.Int("total_saved", report.TotalSaved),
		zap.Int("failed_sections", report.Failed()),
	)
	return report
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
