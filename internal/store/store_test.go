package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/storetest"
)

func ms(v int64) *int64 { return &v }

func saveResult(t *testing.T, s *store.Store, svc *models.Service, status models.Status, at time.Time) *models.ProbeResult {
	t.Helper()
	r := &models.ProbeResult{ServiceID: svc.ID, Status: status, StatusCode: 200, ResponseTimeMs: ms(42), CheckedAt: at}
	if err := s.SaveResult(context.Background(), r); err != nil {
		t.Fatalf("save result: %v", err)
	}
	return r
}

func TestLatestResultsPicksNewestPerService(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	a := storetest.Service(t, s, owner, "a", "https://a.example.com")
	b := storetest.Service(t, s, owner, "b", "https://b.example.com")
	never := storetest.Service(t, s, owner, "never", "https://never.example.com")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	saveResult(t, s, a, models.StatusOnline, base)
	newest := saveResult(t, s, a, models.StatusOffline, base.Add(2*time.Minute))
	saveResult(t, s, a, models.StatusOnline, base.Add(time.Minute))
	onlyB := saveResult(t, s, b, models.StatusDegraded, base)

	latest, err := s.LatestResults(ctx, nil)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("latest len = %d, want 2", len(latest))
	}
	got := map[int64]int64{}
	for _, r := range latest {
		got[r.ServiceID] = r.ID
	}
	if got[a.ID] != newest.ID || got[b.ID] != onlyB.ID {
		t.Fatalf("latest ids = %v", got)
	}

	r, err := s.LatestResult(ctx, never.ID)
	if err != nil {
		t.Fatalf("latest for unprobed service: %v", err)
	}
	if r != nil {
		t.Fatalf("expected no result, got %+v", r)
	}

	empty, err := s.LatestResults(ctx, []int64{})
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty id list: %v %v", empty, err)
	}
}

func TestHistoryWindowAndLimit(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleDeveloper)
	other := storetest.User(t, s, "b@example.com", models.RoleDeveloper)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")
	foreign := storetest.Service(t, s, other, "b", "https://b.example.com")

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		saveResult(t, s, svc, models.StatusOnline, now.Add(-time.Duration(i)*time.Hour))
	}
	saveResult(t, s, foreign, models.StatusOnline, now)

	got, err := s.History(ctx, store.HistoryQuery{ServiceID: svc.ID, Since: now.Add(-150 * time.Minute)})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("history len = %d, want 3", len(got))
	}
	if !got[0].CheckedAt.Equal(now) {
		t.Fatalf("history not newest first: %v", got[0].CheckedAt)
	}

	limited, err := s.History(ctx, store.HistoryQuery{Owner: owner.ID, Limit: 2})
	if err != nil {
		t.Fatalf("history limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited len = %d", len(limited))
	}
	for _, r := range limited {
		if r.ServiceID != svc.ID {
			t.Fatalf("owner scope leaked service %d", r.ServiceID)
		}
	}
}

func TestDeleteServiceCascades(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")
	keep := storetest.Service(t, s, owner, "keep", "https://keep.example.com")

	now := time.Now().UTC()
	saveResult(t, s, svc, models.StatusOffline, now)
	saveResult(t, s, keep, models.StatusOnline, now)

	rule := &models.AlertRule{ServiceID: svc.ID, RuleType: models.RuleStatus, NotificationMethod: models.MethodPush, IsActive: true}
	rule.Normalize()
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	n := &models.Notification{AlertRuleID: rule.ID, ServiceID: svc.ID, Message: "a is currently offline",
		Severity: models.SeverityError, Method: models.MethodPush, Status: models.NotificationPending, SentAt: now}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	if err := s.AppendLog(ctx, &models.LogEntry{ServiceID: &svc.ID, Level: models.LogError, Message: "boom"}); err != nil {
		t.Fatalf("append log: %v", err)
	}

	if err := s.DeleteService(ctx, svc.ID); err != nil {
		t.Fatalf("delete service: %v", err)
	}

	if _, err := s.GetService(ctx, svc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("service still present: %v", err)
	}
	history, err := s.History(ctx, store.HistoryQuery{ServiceID: svc.ID})
	if err != nil || len(history) != 0 {
		t.Fatalf("probe results survived: %d %v", len(history), err)
	}
	if _, err := s.GetRule(ctx, rule.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("rule survived: %v", err)
	}
	count, err := s.CountNotifications(ctx, 0)
	if err != nil || count != 0 {
		t.Fatalf("orphaned notifications: %d %v", count, err)
	}
	logs, err := s.ListLogs(ctx, 0, 10)
	if err != nil || len(logs) != 1 {
		t.Fatalf("logs: %v %v", logs, err)
	}
	if logs[0].ServiceID != nil {
		t.Fatalf("log entry still points at deleted service")
	}
	kept, err := s.History(ctx, store.HistoryQuery{ServiceID: keep.ID})
	if err != nil || len(kept) != 1 {
		t.Fatalf("other service's results touched: %d %v", len(kept), err)
	}

	if err := s.DeleteService(ctx, svc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteRuleRemovesNotifications(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")

	rule := &models.AlertRule{ServiceID: svc.ID, RuleType: models.RuleCPU, Threshold: 80,
		ComparisonOperator: models.OpGreater, NotificationMethod: models.MethodPush, IsActive: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}
	for i := 0; i < 2; i++ {
		n := &models.Notification{AlertRuleID: rule.ID, ServiceID: svc.ID, Message: "cpu", Severity: models.SeverityWarning,
			Method: models.MethodPush, Status: models.NotificationDelivered, SentAt: time.Now()}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	list, err := s.ListNotifications(ctx, owner.ID, 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 2 || list[0].ServiceName != "a" {
		t.Fatalf("notifications = %+v", list)
	}

	if err := s.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("delete rule: %v", err)
	}
	count, err := s.CountNotifications(ctx, rule.ID)
	if err != nil || count != 0 {
		t.Fatalf("notifications after rule delete: %d %v", count, err)
	}
	if err := s.DeleteRule(ctx, rule.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
}

func TestActiveRulesAndUpdate(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")

	active := &models.AlertRule{ServiceID: svc.ID, RuleType: models.RuleResponseTime, Threshold: 1000,
		ComparisonOperator: models.OpGreater, NotificationMethod: models.MethodEmail, IsActive: true}
	inactive := &models.AlertRule{ServiceID: svc.ID, RuleType: models.RuleMemory, Threshold: 90,
		ComparisonOperator: models.OpGreater, NotificationMethod: models.MethodPush, IsActive: false}
	for _, r := range []*models.AlertRule{active, inactive} {
		if err := s.CreateRule(ctx, r); err != nil {
			t.Fatalf("create rule: %v", err)
		}
	}

	byService, err := s.ActiveRulesByService(ctx, []int64{svc.ID})
	if err != nil {
		t.Fatalf("active rules: %v", err)
	}
	if len(byService[svc.ID]) != 1 || byService[svc.ID][0].ID != active.ID {
		t.Fatalf("active rules = %+v", byService)
	}

	active.IsActive = false
	active.Threshold = 0
	if err := s.UpdateRule(ctx, active); err != nil {
		t.Fatalf("update rule: %v", err)
	}
	if active.IsActive || active.Threshold != 0 {
		t.Fatalf("zero values not written: %+v", active)
	}
	byService, err = s.ActiveRulesByService(ctx, []int64{svc.ID})
	if err != nil || len(byService[svc.ID]) != 0 {
		t.Fatalf("rules still active: %+v %v", byService, err)
	}
}

func TestLastNotificationAt(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")
	rule := &models.AlertRule{ServiceID: svc.ID, RuleType: models.RuleStatus, NotificationMethod: models.MethodPush, IsActive: true}
	rule.Normalize()
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatalf("create rule: %v", err)
	}

	if _, ok, err := s.LastNotificationAt(ctx, rule.ID); err != nil || ok {
		t.Fatalf("expected no notification yet: ok=%v err=%v", ok, err)
	}

	sent := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	n := &models.Notification{AlertRuleID: rule.ID, ServiceID: svc.ID, Message: "m", Severity: models.SeverityError,
		Method: models.MethodPush, Status: models.NotificationPending, SentAt: sent}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	at, ok, err := s.LastNotificationAt(ctx, rule.ID)
	if err != nil || !ok || !at.Equal(sent) {
		t.Fatalf("last = %v ok=%v err=%v", at, ok, err)
	}
}

func TestPruneResults(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	owner := storetest.User(t, s, "a@example.com", models.RoleAdmin)
	svc := storetest.Service(t, s, owner, "a", "https://a.example.com")
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	saveResult(t, s, svc, models.StatusOnline, now.AddDate(0, 0, -40))
	saveResult(t, s, svc, models.StatusOnline, now.AddDate(0, 0, -1))

	n, err := s.PruneResults(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	storetest.User(t, s, "dup@example.com", models.RoleViewer)
	err := s.CreateUser(ctx, &models.User{Name: "x", Email: "DUP@example.com", Password: "x", Role: models.RoleViewer})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}
