package models

import "time"

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// NotificationStatus tracks delivery: pending -> delivering -> delivered | failed.
type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "pending"
	NotificationDelivering NotificationStatus = "delivering"
	NotificationDelivered  NotificationStatus = "delivered"
	NotificationFailed     NotificationStatus = "failed"
)

// Notification records one alert rule having fired.
type Notification struct {
	ID          int64              `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	AlertRuleID int64              `json:"alert_rule_id" gorm:"column:alert_rule_id"`
	ServiceID   int64              `json:"service_id" gorm:"column:service_id"`
	Message     string             `json:"message" gorm:"column:message"`
	Severity    Severity           `json:"severity" gorm:"column:severity"`
	Method      Method             `json:"method" gorm:"column:method"`
	Status      NotificationStatus `json:"status" gorm:"column:status"`
	Error       *string            `json:"error,omitempty" gorm:"column:error_message"`
	SentAt      time.Time          `json:"sent_at" gorm:"column:sent_at"`
	DeliveredAt *time.Time         `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// NotificationWithService is a notification joined with its service name.
type NotificationWithService struct {
	Notification
	ServiceName string `json:"service_name" gorm:"column:service_name"`
}
