package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

// Executor runs the probe pipeline: load services, probe them with bounded
// concurrency, persist, broadcast, then hand the batch to the evaluator.
type Executor struct {
	store       *store.Store
	prober      Prober
	hub         Broadcaster
	evaluator   ResultEvaluator
	concurrency int
	logger      *slog.Logger

	// tickMu is a single-slot guard: a tick that cannot take it is skipped.
	tickMu sync.Mutex
}

// NewExecutor creates a new monitor executor. hub and evaluator may be nil.
func NewExecutor(st *store.Store, prober Prober, hub Broadcaster, evaluator ResultEvaluator, concurrency int, logger *slog.Logger) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		store:       st,
		prober:      prober,
		hub:         hub,
		evaluator:   evaluator,
		concurrency: concurrency,
		logger:      logger.With("module", "monitor"),
	}
}

// Tick probes every service and evaluates the fresh results. It returns
// ErrTickInProgress without doing anything if another tick is running.
func (e *Executor) Tick(ctx context.Context) (TickReport, error) {
	if !e.tickMu.TryLock() {
		return TickReport{}, ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	results := e.CheckAllServices(ctx)

	report := TickReport{Checked: len(results), Results: results}
	for _, r := range results {
		if r.Status == models.StatusOffline {
			report.Offline++
		}
	}
	if e.evaluator != nil && len(results) > 0 {
		report.Notifications = len(e.evaluator.Evaluate(ctx, results))
	}

	e.logger.Info("health check tick finished",
		"checked", report.Checked, "offline", report.Offline, "notifications", report.Notifications)
	return report, nil
}

// CheckAllServices probes every registered service. It never fails: a
// registry error yields an empty batch and per-service failures are recorded
// as offline results. Results that could not be persisted are dropped from
// the returned batch.
func (e *Executor) CheckAllServices(ctx context.Context) []*models.ProbeResult {
	services, err := e.store.ListServices(ctx, 0)
	if err != nil {
		e.logger.Error("failed to load services", "err", err)
		return []*models.ProbeResult{}
	}

	probed := make([]*models.ProbeResult, len(services))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range services {
		svc := &services[i]
		g.Go(func() error {
			probed[i] = e.checkOne(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*models.ProbeResult, 0, len(probed))
	for i, r := range probed {
		if err := e.record(ctx, &services[i], r); err != nil {
			e.logger.Error("failed to record probe result", "service_id", services[i].ID, "err", err)
			continue
		}
		results = append(results, r)
	}

	e.broadcast(results)
	return results
}

// CheckService probes one service on demand.
func (e *Executor) CheckService(ctx context.Context, serviceID int64) (*models.ProbeResult, error) {
	svc, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	result := e.checkOne(ctx, svc)
	if err := e.record(ctx, svc, result); err != nil {
		return nil, err
	}

	e.broadcast([]*models.ProbeResult{result})
	return result, nil
}

// checkOne runs the prober and turns a panic into an offline result.
func (e *Executor) checkOne(ctx context.Context, svc *models.Service) (result *models.ProbeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("health check panicked", "service_id", svc.ID, "service", svc.Name, "panic", rec)
			msg := fmt.Sprintf("check failed: %v", rec)
			result = &models.ProbeResult{
				ServiceID: svc.ID,
				Status:    models.StatusOffline,
				Error:     &msg,
				CheckedAt: time.Now().UTC(),
			}
		}
	}()
	return e.prober.Probe(ctx, svc)
}

// record persists a result and, for failed probes, the matching log entry.
func (e *Executor) record(ctx context.Context, svc *models.Service, r *models.ProbeResult) error {
	if err := e.store.SaveResult(ctx, r); err != nil {
		return err
	}

	if r.Status == models.StatusOffline && r.Error != nil {
		e.logger.Warn("service offline", "service_id", svc.ID, "service", svc.Name, "error", *r.Error)
		entry := &models.LogEntry{
			ServiceID: &svc.ID,
			Level:     models.LogError,
			Message:   fmt.Sprintf("Health check failed for %s: %s", svc.Name, *r.Error),
			Timestamp: r.CheckedAt,
		}
		if err := e.store.AppendLog(ctx, entry); err != nil {
			e.logger.Error("failed to append log entry", "service_id", svc.ID, "err", err)
		}
		return nil
	}

	e.logger.Debug("service checked", "service_id", svc.ID, "status", r.Status, "status_code", r.StatusCode)
	return nil
}

func (e *Executor) broadcast(results []*models.ProbeResult) {
	if e.hub == nil || len(results) == 0 {
		return
	}
	if err := e.hub.Broadcast(EventMetricsUpdate, results); err != nil {
		e.logger.Warn("failed to broadcast metrics update", "err", err)
	}
}
