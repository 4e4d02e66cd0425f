package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/servicewatch/internal/models"
)

// ListServices returns services newest first. owner 0 lists every service.
func (s *Store) ListServices(ctx context.Context, owner int64) ([]models.Service, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if owner != 0 {
		q = q.Where("owner_id = ?", owner)
	}
	var out []models.Service
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (*models.Service, error) {
	var svc models.Service
	if err := s.db.WithContext(ctx).First(&svc, id).Error; err != nil {
		return nil, translate(err)
	}
	return &svc, nil
}

// ServicesByID loads the given services keyed by ID. Missing IDs are skipped.
func (s *Store) ServicesByID(ctx context.Context, ids []int64) (map[int64]*models.Service, error) {
	out := make(map[int64]*models.Service, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var list []models.Service
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func (s *Store) CountServices(ctx context.Context, owner int64) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Service{})
	if owner != 0 {
		q = q.Where("owner_id = ?", owner)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return n, nil
}

func (s *Store) CreateService(ctx context.Context, svc *models.Service) error {
	if err := s.db.WithContext(ctx).Create(svc).Error; err != nil {
		return fmt.Errorf("create service: %w", translate(err))
	}
	return nil
}

// UpdateService changes name and url. Identity and owner are immutable.
func (s *Store) UpdateService(ctx context.Context, svc *models.Service) error {
	res := s.db.WithContext(ctx).Model(&models.Service{}).
		Where("id = ?", svc.ID).
		Updates(map[string]any{
			"name":       svc.Name,
			"url":        svc.URL,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update service: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	updated, err := s.GetService(ctx, svc.ID)
	if err != nil {
		return err
	}
	*svc = *updated
	return nil
}

// DeleteService removes a service together with everything it owns: probe
// results, alert rules and their notifications. Log entries are kept with
// service_id cleared.
func (s *Store) DeleteService(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.First(&svc, id).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("service_id = ?", id).Delete(&models.Notification{}).Error; err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		if err := tx.Where("service_id = ?", id).Delete(&models.AlertRule{}).Error; err != nil {
			return fmt.Errorf("delete alert rules: %w", err)
		}
		if err := tx.Where("service_id = ?", id).Delete(&models.ProbeResult{}).Error; err != nil {
			return fmt.Errorf("delete probe results: %w", err)
		}
		if err := tx.Model(&models.LogEntry{}).Where("service_id = ?", id).Update("service_id", nil).Error; err != nil {
			return fmt.Errorf("detach log entries: %w", err)
		}
		if err := tx.Delete(&models.Service{}, id).Error; err != nil {
			return fmt.Errorf("delete service: %w", err)
		}
		return nil
	})
}
