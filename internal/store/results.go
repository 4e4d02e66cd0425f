package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
)

// latestResultCond picks, per service, the row with the newest checked_at.
// Ties are broken by the highest id. Portable across postgres and sqlite.
const latestResultCond = `probe_results.id = (
	SELECT p2.id FROM probe_results p2
	WHERE p2.service_id = probe_results.service_id
	ORDER BY p2.checked_at DESC, p2.id DESC
	LIMIT 1)`

// SaveResult appends one probe result.
func (s *Store) SaveResult(ctx context.Context, r *models.ProbeResult) error {
	r.CheckedAt = r.CheckedAt.UTC()
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("save probe result for service %d: %w", r.ServiceID, translate(err))
	}
	return nil
}

// LatestResults returns the most recent result of each listed service.
// A nil slice means every service.
func (s *Store) LatestResults(ctx context.Context, serviceIDs []int64) ([]models.ProbeResult, error) {
	var out []models.ProbeResult
	if serviceIDs != nil && len(serviceIDs) == 0 {
		return out, nil
	}
	q := s.db.WithContext(ctx).Where(latestResultCond)
	if serviceIDs != nil {
		q = q.Where("probe_results.service_id IN ?", serviceIDs)
	}
	if err := q.Order("probe_results.service_id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("latest results: %w", err)
	}
	return out, nil
}

// LatestResult returns the newest result for one service, or nil if it has
// never been probed.
func (s *Store) LatestResult(ctx context.Context, serviceID int64) (*models.ProbeResult, error) {
	results, err := s.LatestResults(ctx, []int64{serviceID})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// HistoryQuery selects probe results in a time window, newest first.
type HistoryQuery struct {
	ServiceID int64 // 0 for all services
	Owner     int64 // 0 for every owner
	Since     time.Time
	Until     time.Time // zero means now
	Limit     int
}

func (s *Store) History(ctx context.Context, hq HistoryQuery) ([]models.ProbeResult, error) {
	q := s.db.WithContext(ctx).Scopes(ownedServices(hq.Owner))
	if hq.ServiceID != 0 {
		q = q.Where("service_id = ?", hq.ServiceID)
	}
	if !hq.Since.IsZero() {
		q = q.Where("checked_at >= ?", hq.Since.UTC())
	}
	if !hq.Until.IsZero() {
		q = q.Where("checked_at <= ?", hq.Until.UTC())
	}
	if hq.Limit > 0 {
		q = q.Limit(hq.Limit)
	}
	var out []models.ProbeResult
	if err := q.Order("checked_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("probe history: %w", err)
	}
	return out, nil
}

// PruneResults deletes results checked before cutoff and reports how many went.
func (s *Store) PruneResults(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("checked_at < ?", cutoff.UTC()).Delete(&models.ProbeResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune probe results: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// CountResults counts every stored probe result.
func (s *Store) CountResults(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ProbeResult{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count probe results: %w", err)
	}
	return n, nil
}
