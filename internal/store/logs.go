package store

import (
	"context"
	"fmt"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
)

func (s *Store) AppendLog(ctx context.Context, e *models.LogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("append log entry: %w", err)
	}
	return nil
}

// ListLogs returns the newest entries. Scoped reads only see entries tied to
// the owner's services.
func (s *Store) ListLogs(ctx context.Context, owner int64, limit int) ([]models.LogEntry, error) {
	q := s.db.WithContext(ctx).Scopes(ownedServices(owner)).Order("logged_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.LogEntry
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	return out, nil
}
