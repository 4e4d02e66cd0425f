package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

// Dispatcher records fired alerts and delivers them. Every notification goes
// through pending, is pushed to live subscribers, and ends delivered or failed.
type Dispatcher struct {
	store    *store.Store
	hub      Broadcaster
	email    EmailSender
	fallback string
	log      *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a new notification dispatcher. fallbackRecipient is
// used for email rules whose service owner has no address on file.
func NewDispatcher(st *store.Store, hub Broadcaster, email EmailSender, fallbackRecipient string, logger *slog.Logger) *Dispatcher {
	if email == nil {
		email = DisabledSender()
	}
	return &Dispatcher{
		store:    st,
		hub:      hub,
		email:    email,
		fallback: fallbackRecipient,
		log:      logger.With("module", "notification"),
		now:      time.Now,
	}
}

// Dispatch persists a notification for rule and attempts delivery once. A
// delivery failure is recorded on the notification, not returned; the error
// only reports that the record itself could not be written.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *models.AlertRule, svc *models.Service, message string, severity models.Severity) (*models.Notification, error) {
	n := &models.Notification{
		AlertRuleID: rule.ID,
		ServiceID:   svc.ID,
		Message:     message,
		Severity:    severity,
		Method:      rule.NotificationMethod,
		Status:      models.NotificationPending,
		SentAt:      d.now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, err
	}

	pushErr := d.push(n, svc)

	var deliveryErr error
	switch n.Method {
	case models.MethodPush:
		deliveryErr = pushErr
	case models.MethodEmail:
		n.Status = models.NotificationDelivering
		if err := d.store.UpdateNotificationStatus(ctx, n); err != nil {
			d.log.Error("mark notification delivering", "err", err, "notification_id", n.ID)
		}
		deliveryErr = d.sendEmail(ctx, n, svc)
	default:
		deliveryErr = fmt.Errorf("unsupported notification method %q", n.Method)
	}

	if deliveryErr != nil {
		msg := deliveryErr.Error()
		n.Status = models.NotificationFailed
		n.Error = &msg
		d.log.Warn("notification delivery failed", "err", deliveryErr, "notification_id", n.ID, "rule_id", rule.ID, "method", n.Method)
	} else {
		at := d.now().UTC()
		n.Status = models.NotificationDelivered
		n.DeliveredAt = &at
	}

	if err := d.store.UpdateNotificationStatus(ctx, n); err != nil {
		d.log.Error("record delivery outcome", "err", err, "notification_id", n.ID)
	}

	d.log.Info("alert dispatched", "notification_id", n.ID, "rule_id", rule.ID, "service", svc.Name,
		"severity", severity, "method", n.Method, "status", n.Status)
	return n, nil
}

func (d *Dispatcher) push(n *models.Notification, svc *models.Service) error {
	if d.hub == nil {
		return fmt.Errorf("no live channel configured")
	}
	payload := models.NotificationWithService{Notification: *n, ServiceName: svc.Name}
	if err := d.hub.Broadcast(EventAlertNotification, payload); err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, n *models.Notification, svc *models.Service) error {
	to := d.fallback
	owner, err := d.store.GetUser(ctx, svc.OwnerID)
	if err != nil {
		d.log.Warn("load service owner", "err", err, "service_id", svc.ID)
	} else if owner.Email != "" {
		to = owner.Email
	}
	if to == "" {
		return fmt.Errorf("no recipient for alert email")
	}

	return d.email.Send(ctx, Email{
		To:          to,
		Subject:     Subject(n.Severity, svc.Name),
		Message:     n.Message,
		ServiceName: svc.Name,
		Severity:    n.Severity,
	})
}
