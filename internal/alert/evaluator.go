// Package alert evaluates alert rules against fresh probe results.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

// errorFactor is the multiple of the threshold at or beyond which a breach is an error.
const errorFactor = 1.5

// Dispatcher records and delivers one fired rule.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *models.AlertRule, svc *models.Service, message string, severity models.Severity) (*models.Notification, error)
}

type Evaluator struct {
	store      *store.Store
	dispatcher Dispatcher
	cooldown   time.Duration
	log        *slog.Logger
	now        func() time.Time
}

// NewEvaluator creates an evaluator. A zero cooldown fires on every breach.
func NewEvaluator(st *store.Store, dispatcher Dispatcher, cooldown time.Duration, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:      st,
		dispatcher: dispatcher,
		cooldown:   cooldown,
		log:        logger.With("module", "alert"),
		now:        time.Now,
	}
}

// Evaluate checks the active rules of every service in results and
// dispatches one notification per firing rule. Failures are logged per rule.
func (e *Evaluator) Evaluate(ctx context.Context, results []*models.ProbeResult) []*models.Notification {
	fired := make([]*models.Notification, 0)
	if len(results) == 0 {
		return fired
	}

	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ServiceID)
	}

	rules, err := e.store.ActiveRulesByService(ctx, ids)
	if err != nil {
		e.log.Error("load rules", "err", err)
		return fired
	}
	services, err := e.store.ServicesByID(ctx, ids)
	if err != nil {
		e.log.Error("load services", "err", err)
		return fired
	}

	for _, result := range results {
		svc, ok := services[result.ServiceID]
		if !ok {
			continue
		}
		for i := range rules[result.ServiceID] {
			rule := &rules[result.ServiceID][i]
			n, err := e.evalRule(ctx, rule, svc, result)
			if err != nil {
				e.log.Error("evaluate rule", "err", err, "rule_id", rule.ID, "service_id", svc.ID)
				continue
			}
			if n != nil {
				fired = append(fired, n)
			}
		}
	}
	return fired
}

func (e *Evaluator) evalRule(ctx context.Context, rule *models.AlertRule, svc *models.Service, result *models.ProbeResult) (*models.Notification, error) {
	var (
		triggered bool
		value     float64
	)

	switch rule.RuleType {
	case models.RuleStatus:
		triggered = result.Status == models.StatusOffline
	case models.RuleResponseTime, models.RuleCPU, models.RuleMemory:
		v, ok := MetricValue(rule.RuleType, result)
		if !ok {
			return nil, nil
		}
		value = v
		triggered = Compare(v, rule.Threshold, rule.ComparisonOperator)
	default:
		return nil, fmt.Errorf("unsupported rule type %q", rule.RuleType)
	}

	if !triggered {
		return nil, nil
	}

	if e.cooldown > 0 {
		last, ok, err := e.store.LastNotificationAt(ctx, rule.ID)
		if err != nil {
			return nil, err
		}
		if ok && e.now().Sub(last) < e.cooldown {
			e.log.Debug("rule in cooldown", "rule_id", rule.ID, "last_fired", last)
			return nil, nil
		}
	}

	severity := Severity(rule, value)
	message := Message(rule, svc, value)
	n, err := e.dispatcher.Dispatch(ctx, rule, svc, message, severity)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	return n, nil
}

// Compare applies op to value and threshold. Unknown operators never match.
func Compare(value, threshold float64, op models.Operator) bool {
	switch op {
	case models.OpGreater:
		return value > threshold
	case models.OpLess:
		return value < threshold
	case models.OpGreaterEqual:
		return value >= threshold
	case models.OpLessEqual:
		return value <= threshold
	default:
		return false
	}
}

// MetricValue extracts the numeric field a rule type looks at. ok is false
// when the result does not carry it: a timed-out probe has no latency, and
// CPU and memory only exist when load simulation is on.
func MetricValue(rt models.RuleType, r *models.ProbeResult) (float64, bool) {
	switch rt {
	case models.RuleResponseTime:
		if r.ResponseTimeMs == nil {
			return 0, false
		}
		return float64(*r.ResponseTimeMs), true
	case models.RuleCPU:
		if r.CPUUsage == nil {
			return 0, false
		}
		return *r.CPUUsage, true
	case models.RuleMemory:
		if r.MemoryUsage == nil {
			return 0, false
		}
		return *r.MemoryUsage, true
	}
	return 0, false
}

// Severity is error for status rules and for values at or beyond 1.5x the
// threshold, warning otherwise.
func Severity(rule *models.AlertRule, value float64) models.Severity {
	if rule.RuleType == models.RuleStatus || value >= rule.Threshold*errorFactor {
		return models.SeverityError
	}
	return models.SeverityWarning
}

// Message renders the human-readable notification text.
func Message(rule *models.AlertRule, svc *models.Service, value float64) string {
	if rule.RuleType == models.RuleStatus {
		return fmt.Sprintf("%s is currently offline", svc.Name)
	}
	unit := "%"
	if rule.RuleType == models.RuleResponseTime {
		unit = "ms"
	}
	return fmt.Sprintf("%s: %s is %s%s (threshold: %s%s)",
		svc.Name, metricName(rule.RuleType), formatNumber(value), unit, formatNumber(rule.Threshold), unit)
}

func metricName(rt models.RuleType) string {
	switch rt {
	case models.RuleResponseTime:
		return "Response Time"
	case models.RuleCPU:
		return "CPU Usage"
	case models.RuleMemory:
		return "Memory Usage"
	}
	return "Service Status"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
