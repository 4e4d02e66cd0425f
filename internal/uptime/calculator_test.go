package uptime

import (
	"context"
	"testing"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/storetest"
)

func save(t *testing.T, s *store.Store, serviceID int64, status models.Status, ms int64, at time.Time) {
	t.Helper()
	r := &models.ProbeResult{ServiceID: serviceID, Status: status, CheckedAt: at}
	if status != models.StatusOffline {
		r.ResponseTimeMs = &ms
	}
	if err := s.SaveResult(context.Background(), r); err != nil {
		t.Fatalf("save: %v", err)
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		up, total int64
		want      float64
	}{
		{0, 0, 100},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{3, 3, 100},
		{0, 5, 0},
	}
	for _, tc := range cases {
		if got := Percentage(tc.up, tc.total); got != tc.want {
			t.Fatalf("Percentage(%d, %d) = %v, want %v", tc.up, tc.total, got, tc.want)
		}
	}
}

func TestCalculateForServiceAndOwner(t *testing.T) {
	s := storetest.New(t)
	alice := storetest.User(t, s, "alice@example.com", models.RoleDeveloper)
	bob := storetest.User(t, s, "bob@example.com", models.RoleDeveloper)
	a := storetest.Service(t, s, alice, "a", "https://a.example.com")
	b := storetest.Service(t, s, bob, "b", "https://b.example.com")

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	save(t, s, a.ID, models.StatusOnline, 100, now.Add(-time.Hour))
	save(t, s, a.ID, models.StatusDegraded, 300, now.Add(-90*time.Minute))
	save(t, s, a.ID, models.StatusOffline, 0, now.Add(-2*time.Hour))
	save(t, s, a.ID, models.StatusOnline, 50, now.Add(-48*time.Hour)) // outside the window
	save(t, s, b.ID, models.StatusOffline, 0, now.Add(-time.Hour))

	c := NewCalculator(s)
	c.now = func() time.Time { return now }

	st, err := c.ForPeriod(context.Background(), a.ID, 24*time.Hour)
	if err != nil {
		t.Fatalf("for period: %v", err)
	}
	if st.TotalChecks != 3 || st.OnlineChecks != 1 || st.DegradedChecks != 1 || st.OfflineChecks != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.UptimePercentage != 33.33 || st.AverageResponseMs != 200 {
		t.Fatalf("stats = %+v", st)
	}

	mine, err := c.Overall(context.Background(), alice.ID, 24*time.Hour)
	if err != nil || mine.TotalChecks != 3 {
		t.Fatalf("alice overall = %+v, %v", mine, err)
	}
	all, err := c.Overall(context.Background(), 0, 24*time.Hour)
	if err != nil || all.TotalChecks != 4 || all.OfflineChecks != 2 {
		t.Fatalf("overall = %+v, %v", all, err)
	}
}

func TestCalculateNoData(t *testing.T) {
	s := storetest.New(t)
	c := NewCalculator(s)
	st, err := c.Overall(context.Background(), 0, time.Hour)
	if err != nil {
		t.Fatalf("overall: %v", err)
	}
	if st.TotalChecks != 0 || st.UptimePercentage != 100 || st.AverageResponseMs != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestHourly(t *testing.T) {
	s := storetest.New(t)
	owner := storetest.User(t, s, "o@example.com", models.RoleDeveloper)
	svc := storetest.Service(t, s, owner, "svc", "https://svc.example.com")

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	save(t, s, svc.ID, models.StatusOnline, 10, time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC))
	save(t, s, svc.ID, models.StatusOffline, 0, time.Date(2025, 6, 1, 10, 45, 0, 0, time.UTC))
	save(t, s, svc.ID, models.StatusOnline, 10, time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC))

	c := NewCalculator(s)
	c.now = func() time.Time { return now }
	points, err := c.Hourly(context.Background(), svc.ID, 24)
	if err != nil {
		t.Fatalf("hourly: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points = %+v", points)
	}
	if points[0].Hour != "2025-06-01T10:00:00Z" || points[0].TotalChecks != 2 || points[0].UptimePercentage != 50 {
		t.Fatalf("first = %+v", points[0])
	}
	if points[1].Hour != "2025-06-01T12:00:00Z" || points[1].UptimePercentage != 100 {
		t.Fatalf("second = %+v", points[1])
	}
}
