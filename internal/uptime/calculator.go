// Package uptime aggregates probe results into availability figures.
package uptime

import (
	"context"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

// Calculator calculates uptime statistics for services
type Calculator struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCalculator(st *store.Store) *Calculator {
	return &Calculator{db: st.DB(), now: time.Now}
}

// Stats summarizes the probes of one service, or of every service in scope
// when ServiceID is zero. Only online counts as up.
type Stats struct {
	ServiceID         int64   `json:"service_id,omitempty"`
	UptimePercentage  float64 `json:"uptime_percentage"`
	TotalChecks       int64   `json:"total_checks"`
	OnlineChecks      int64   `json:"online_checks"`
	DegradedChecks    int64   `json:"degraded_checks"`
	OfflineChecks     int64   `json:"offline_checks"`
	AverageResponseMs float64 `json:"average_response_ms"`
	StartTime         string  `json:"start_time"`
	EndTime           string  `json:"end_time"`
}

// Query selects the probes to aggregate.
type Query struct {
	ServiceID int64 // 0 for all services
	Owner     int64 // 0 for every owner
	Start     time.Time
	End       time.Time
}

// ForPeriod returns stats for one service over the trailing window d.
func (c *Calculator) ForPeriod(ctx context.Context, serviceID int64, d time.Duration) (*Stats, error) {
	end := c.now().UTC()
	return c.Calculate(ctx, Query{ServiceID: serviceID, Start: end.Add(-d), End: end})
}

// Overall returns stats across every service the owner can see over the
// trailing window d.
func (c *Calculator) Overall(ctx context.Context, owner int64, d time.Duration) (*Stats, error) {
	end := c.now().UTC()
	return c.Calculate(ctx, Query{Owner: owner, Start: end.Add(-d), End: end})
}

func (c *Calculator) Calculate(ctx context.Context, q Query) (*Stats, error) {
	var row struct {
		Total    int64
		Online   int64
		Degraded int64
		Offline  int64
		AvgMs    *float64
	}
	err := c.scoped(ctx, q).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS online,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS degraded,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS offline,
			AVG(response_time_ms) AS avg_ms`,
			models.StatusOnline, models.StatusDegraded, models.StatusOffline).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("calculate uptime: %w", err)
	}

	stats := &Stats{
		ServiceID:        q.ServiceID,
		UptimePercentage: Percentage(row.Online, row.Total),
		TotalChecks:      row.Total,
		OnlineChecks:     row.Online,
		DegradedChecks:   row.Degraded,
		OfflineChecks:    row.Offline,
		StartTime:        q.Start.UTC().Format(time.RFC3339),
		EndTime:          q.End.UTC().Format(time.RFC3339),
	}
	if row.AvgMs != nil {
		stats.AverageResponseMs = math.Round(*row.AvgMs)
	}
	return stats, nil
}

// HourlyPoint is the uptime of one clock hour.
type HourlyPoint struct {
	Hour             string  `json:"hour"`
	UptimePercentage float64 `json:"uptime_percentage"`
	TotalChecks      int64   `json:"total_checks"`
	OnlineChecks     int64   `json:"online_checks"`
}

// Hourly buckets the last hours of one service by UTC hour, oldest first.
// Hours without probes are omitted.
func (c *Calculator) Hourly(ctx context.Context, serviceID int64, hours int) ([]HourlyPoint, error) {
	end := c.now().UTC()
	q := Query{ServiceID: serviceID, Start: end.Add(-time.Duration(hours) * time.Hour), End: end}

	var rows []struct {
		Status    models.Status
		CheckedAt time.Time
	}
	err := c.scoped(ctx, q).
		Select("status, checked_at").
		Order("checked_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("hourly uptime: %w", err)
	}

	points := make([]HourlyPoint, 0)
	for _, r := range rows {
		hour := r.CheckedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)
		if len(points) == 0 || points[len(points)-1].Hour != hour {
			points = append(points, HourlyPoint{Hour: hour})
		}
		p := &points[len(points)-1]
		p.TotalChecks++
		if r.Status == models.StatusOnline {
			p.OnlineChecks++
		}
	}
	for i := range points {
		points[i].UptimePercentage = Percentage(points[i].OnlineChecks, points[i].TotalChecks)
	}
	return points, nil
}

func (c *Calculator) scoped(ctx context.Context, q Query) *gorm.DB {
	db := c.db.WithContext(ctx).Table("probe_results").
		Where("checked_at >= ? AND checked_at <= ?", q.Start.UTC(), q.End.UTC())
	if q.ServiceID != 0 {
		db = db.Where("service_id = ?", q.ServiceID)
	}
	if q.Owner != 0 {
		db = db.Where("service_id IN (?)", c.db.Session(&gorm.Session{NewDB: true}).
			Table("services").Select("id").Where("owner_id = ?", q.Owner))
	}
	return db
}

// Percentage is up/total as a percentage rounded to two decimals. With no
// checks at all nothing has been seen down, so it is 100.
func Percentage(up, total int64) float64 {
	if total == 0 {
		return 100
	}
	return math.Round(float64(up)/float64(total)*100*100) / 100
}
