package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

const notificationsLimit = 50

// Notifier records and delivers a notification for a rule.
type Notifier interface {
	Dispatch(ctx context.Context, rule *models.AlertRule, svc *models.Service, message string, severity models.Severity) (*models.Notification, error)
}

// RuleView is an alert rule with the name and URL of its service.
type RuleView struct {
	models.AlertRule
	ServiceName string `json:"service_name"`
	ServiceURL  string `json:"service_url"`
}

type ruleRequest struct {
	ServiceID          *int64           `json:"service_id"`
	RuleType           *models.RuleType `json:"rule_type"`
	Threshold          *float64         `json:"threshold"`
	ComparisonOperator *models.Operator `json:"comparison_operator"`
	NotificationMethod *models.Method   `json:"notification_method"`
	IsActive           *bool            `json:"is_active"`
}

// apply copies the supplied fields onto rule and reports whether a
// threshold is now known.
func (req ruleRequest) apply(rule *models.AlertRule, hadThreshold bool) bool {
	if req.ServiceID != nil {
		rule.ServiceID = *req.ServiceID
	}
	if req.RuleType != nil {
		rule.RuleType = *req.RuleType
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.ComparisonOperator != nil {
		rule.ComparisonOperator = *req.ComparisonOperator
	}
	if req.NotificationMethod != nil {
		rule.NotificationMethod = *req.NotificationMethod
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return hadThreshold || req.Threshold != nil
}

// serviceFor loads a rule's service and checks the caller may see it.
func serviceFor(r *http.Request, st *store.Store, serviceID int64) (*models.Service, error) {
	svc, err := st.GetService(r.Context(), serviceID)
	if err != nil {
		return nil, err
	}
	if owner := currentUser(r).OwnerScope(); owner != 0 && svc.OwnerID != owner {
		return nil, store.ErrNotFound
	}
	return svc, nil
}

// loadRule returns the rule in the {id} path parameter with its service.
func loadRule(r *http.Request, st *store.Store) (*models.AlertRule, *models.Service, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return nil, nil, store.ErrNotFound
	}
	rule, err := st.GetRule(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	svc, err := serviceFor(r, st, rule.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	return rule, svc, nil
}

// HandleGetAlertRules lists visible rules newest first.
func HandleGetAlertRules(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := st.ListRules(r.Context(), currentUser(r).OwnerScope())
		if err != nil {
			writeStoreError(w, logger, err, "alert rules")
			return
		}
		ids := make([]int64, 0, len(rules))
		for _, rule := range rules {
			ids = append(ids, rule.ServiceID)
		}
		services, err := st.ServicesByID(r.Context(), ids)
		if err != nil {
			writeStoreError(w, logger, err, "alert rules")
			return
		}

		out := make([]RuleView, 0, len(rules))
		for _, rule := range rules {
			v := RuleView{AlertRule: rule}
			if svc, ok := services[rule.ServiceID]; ok {
				v.ServiceName, v.ServiceURL = svc.Name, svc.URL
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleCreateAlertRule creates a rule. Status rules get "=" and threshold 0
// whatever the client sent.
func HandleCreateAlertRule(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ruleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.ServiceID == nil || req.RuleType == nil {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}

		rule := &models.AlertRule{IsActive: true}
		thresholdSet := req.apply(rule, false)
		if err := rule.Validate(thresholdSet); err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		svc, err := serviceFor(r, st, rule.ServiceID)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		if err := st.CreateRule(r.Context(), rule); err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		logger.Info("alert rule created", "rule_id", rule.ID, "service_id", svc.ID, "rule_type", rule.RuleType)
		writeJSON(w, http.StatusCreated, RuleView{AlertRule: *rule, ServiceName: svc.Name, ServiceURL: svc.URL})
	}
}

// HandleUpdateAlertRule applies a partial update to a rule.
func HandleUpdateAlertRule(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, svc, err := loadRule(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}

		var req ruleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.ServiceID != nil && *req.ServiceID != rule.ServiceID {
			writeError(w, http.StatusBadRequest, "service_id cannot be changed")
			return
		}

		// An existing metric rule always has a threshold; a status rule being
		// turned into a metric rule needs one supplied.
		hadThreshold := rule.RuleType != models.RuleStatus
		thresholdSet := req.apply(rule, hadThreshold)
		if err := rule.Validate(thresholdSet); err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}

		if err := st.UpdateRule(r.Context(), rule); err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		writeJSON(w, http.StatusOK, RuleView{AlertRule: *rule, ServiceName: svc.Name, ServiceURL: svc.URL})
	}
}

// HandleDeleteAlertRule deletes a rule and its notifications.
func HandleDeleteAlertRule(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, _, err := loadRule(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		if err := st.DeleteRule(r.Context(), rule.ID); err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Alert rule deleted successfully"})
	}
}

// HandleGetNotifications lists the newest notifications with service names.
func HandleGetNotifications(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := intQuery(r, "limit", notificationsLimit, 500)
		out, err := st.ListNotifications(r.Context(), currentUser(r).OwnerScope(), limit)
		if err != nil {
			writeStoreError(w, logger, err, "notifications")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type notifyRequest struct {
	AlertRuleID int64           `json:"alert_rule_id"`
	Message     string          `json:"message"`
	Severity    models.Severity `json:"severity"`
}

// HandleSendNotification fires a rule by hand through the normal delivery
// path. Useful for checking email and push wiring.
func HandleSendNotification(st *store.Store, notifier Notifier, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req notifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.AlertRuleID == 0 || req.Message == "" {
			writeError(w, http.StatusBadRequest, "Missing required fields")
			return
		}
		switch req.Severity {
		case "":
			req.Severity = models.SeverityWarning
		case models.SeverityWarning, models.SeverityError:
		default:
			writeError(w, http.StatusBadRequest, "Severity must be warning or error")
			return
		}

		rule, err := st.GetRule(r.Context(), req.AlertRuleID)
		if err != nil {
			writeStoreError(w, logger, err, "Alert rule")
			return
		}
		svc, err := serviceFor(r, st, rule.ServiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Alert rule not found")
				return
			}
			writeStoreError(w, logger, err, "Alert rule")
			return
		}

		n, err := notifier.Dispatch(r.Context(), rule, svc, req.Message, req.Severity)
		if err != nil {
			writeStoreError(w, logger, err, "notification")
			return
		}
		writeJSON(w, http.StatusCreated, models.NotificationWithService{Notification: *n, ServiceName: svc.Name})
	}
}
