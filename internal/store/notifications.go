package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/servicewatch/internal/models"
)

func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	n.SentAt = n.SentAt.UTC()
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", translate(err))
	}
	return nil
}

// UpdateNotificationStatus persists the delivery state of n.
func (s *Store) UpdateNotificationStatus(ctx context.Context, n *models.Notification) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", n.ID).
		Updates(map[string]any{
			"status":        n.Status,
			"error_message": n.Error,
			"delivered_at":  n.DeliveredAt,
		})
	if res.Error != nil {
		return fmt.Errorf("update notification %d: %w", n.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotifications returns the newest notifications with their service name.
func (s *Store) ListNotifications(ctx context.Context, owner int64, limit int) ([]models.NotificationWithService, error) {
	q := s.db.WithContext(ctx).
		Table("notifications").
		Select("notifications.*, services.name AS service_name").
		Joins("JOIN services ON services.id = notifications.service_id")
	if owner != 0 {
		q = q.Where("services.owner_id = ?", owner)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.NotificationWithService
	if err := q.Order("notifications.sent_at DESC, notifications.id DESC").Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// CountNotifications counts notifications for a rule. Used by tests and the
// cascade checks.
func (s *Store) CountNotifications(ctx context.Context, ruleID int64) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Notification{})
	if ruleID != 0 {
		q = q.Where("alert_rule_id = ?", ruleID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// LastNotificationAt returns when the rule last fired. ok is false if it never has.
func (s *Store) LastNotificationAt(ctx context.Context, ruleID int64) (at time.Time, ok bool, err error) {
	var n models.Notification
	err = s.db.WithContext(ctx).
		Where("alert_rule_id = ?", ruleID).
		Order("sent_at DESC, id DESC").
		First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last notification for rule %d: %w", ruleID, err)
	}
	return n.SentAt, true, nil
}
