// Package jobs runs the periodic health-check tick and result retention.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fuomag9/servicewatch/internal/monitor"
)

// Ticker runs one health-check tick.
type Ticker interface {
	Tick(ctx context.Context) (monitor.TickReport, error)
}

// Pruner deletes probe results checked before cutoff.
type Pruner interface {
	PruneResults(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	CheckSchedule     string
	RetentionSchedule string
	RetentionDays     int
	// TickTimeout bounds one tick. Zero means no bound.
	TickTimeout time.Duration
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	ticker Ticker
	pruner Pruner
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers the jobs. Schedules are standard five-field cron
// expressions; an empty RetentionSchedule or non-positive RetentionDays
// disables pruning.
func NewScheduler(ticker Ticker, pruner Pruner, opts Options, logger *slog.Logger) (*Scheduler, error) {
	logger = logger.With("module", "jobs")
	cl := cronLogger{log: logger}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ticker: ticker,
		pruner: pruner,
		opts:   opts,
		log:    logger,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := s.cron.AddFunc(opts.CheckSchedule, s.RunHealthCheck); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule health check %q: %w", opts.CheckSchedule, err)
	}
	if opts.RetentionSchedule != "" && opts.RetentionDays > 0 && pruner != nil {
		if _, err := s.cron.AddFunc(opts.RetentionSchedule, s.RunRetention); err != nil {
			cancel()
			return nil, fmt.Errorf("schedule retention %q: %w", opts.RetentionSchedule, err)
		}
	}
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("job scheduler started", "check_schedule", s.opts.CheckSchedule,
		"retention_schedule", s.opts.RetentionSchedule, "retention_days", s.opts.RetentionDays)
}

// Stop stops scheduling new runs, cancels in-flight jobs and waits for them
// or for ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunHealthCheck runs one tick. It is the cron job body and is exported so
// it can be driven directly.
func (s *Scheduler) RunHealthCheck() {
	ctx := s.ctx
	if s.opts.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TickTimeout)
		defer cancel()
	}

	start := s.now()
	report, err := s.ticker.Tick(ctx)
	if errors.Is(err, monitor.ErrTickInProgress) {
		s.log.Warn("health check skipped, previous tick still running")
		return
	}
	if err != nil {
		s.log.Error("health check failed", "err", err)
		return
	}
	s.log.Info("health check complete", "checked", report.Checked, "offline", report.Offline,
		"notifications", report.Notifications, "duration", time.Since(start))
}

// RunRetention prunes probe results older than the retention window.
func (s *Scheduler) RunRetention() {
	cutoff := s.now().UTC().AddDate(0, 0, -s.opts.RetentionDays)
	n, err := s.pruner.PruneResults(s.ctx, cutoff)
	if err != nil {
		s.log.Error("failed to prune probe results", "err", err)
		return
	}
	s.log.Info("pruned probe results", "deleted", n, "cutoff", cutoff)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{"err", err}, keysAndValues...)...)
}
