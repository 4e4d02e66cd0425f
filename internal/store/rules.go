package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/servicewatch/internal/models"
)

// ListRules returns rules newest first, scoped to one owner's services when
// owner is non-zero.
func (s *Store) ListRules(ctx context.Context, owner int64) ([]models.AlertRule, error) {
	var out []models.AlertRule
	err := s.db.WithContext(ctx).
		Scopes(ownedServices(owner)).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}
	return out, nil
}

// ActiveRulesByService returns the active rules of the given services,
// grouped by service ID.
func (s *Store) ActiveRulesByService(ctx context.Context, serviceIDs []int64) (map[int64][]models.AlertRule, error) {
	out := make(map[int64][]models.AlertRule)
	if len(serviceIDs) == 0 {
		return out, nil
	}
	var rules []models.AlertRule
	err := s.db.WithContext(ctx).
		Where("is_active = ? AND service_id IN ?", true, serviceIDs).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("load active rules: %w", err)
	}
	for _, r := range rules {
		out[r.ServiceID] = append(out[r.ServiceID], r)
	}
	return out, nil
}

func (s *Store) GetRule(ctx context.Context, id int64) (*models.AlertRule, error) {
	var r models.AlertRule
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) CreateRule(ctx context.Context, r *models.AlertRule) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create alert rule: %w", translate(err))
	}
	return nil
}

// UpdateRule overwrites every mutable column, zero values included.
func (s *Store) UpdateRule(ctx context.Context, r *models.AlertRule) error {
	res := s.db.WithContext(ctx).Model(&models.AlertRule{}).
		Where("id = ?", r.ID).
		Updates(map[string]any{
			"rule_type":           r.RuleType,
			"threshold":           r.Threshold,
			"comparison_operator": r.ComparisonOperator,
			"notification_method": r.NotificationMethod,
			"is_active":           r.IsActive,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update alert rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	updated, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

// DeleteRule removes a rule and every notification it produced.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("alert_rule_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		res := tx.Delete(&models.AlertRule{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete alert rule: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
