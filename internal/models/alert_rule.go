package models

import (
	"fmt"
	"time"
)

type RuleType string

const (
	RuleCPU          RuleType = "cpu"
	RuleMemory       RuleType = "memory"
	RuleResponseTime RuleType = "response_time"
	RuleStatus       RuleType = "status"
)

type Operator string

const (
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	// OpEqual is stored on status rules only; it carries no meaning there.
	OpEqual Operator = "="
)

type Method string

const (
	MethodEmail Method = "email"
	MethodPush  Method = "push"
)

// AlertRule is a threshold condition bound to one service and one metric.
type AlertRule struct {
	ID                 int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID          int64     `json:"service_id" gorm:"column:service_id"`
	RuleType           RuleType  `json:"rule_type" gorm:"column:rule_type"`
	Threshold          float64   `json:"threshold" gorm:"column:threshold"`
	ComparisonOperator Operator  `json:"comparison_operator" gorm:"column:comparison_operator"`
	NotificationMethod Method    `json:"notification_method" gorm:"column:notification_method"`
	IsActive           bool      `json:"is_active" gorm:"column:is_active"`
	CreatedAt          time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName specifies the table name for AlertRule
func (AlertRule) TableName() string {
	return "alert_rules"
}

// Normalize forces the stored operator and threshold of status rules to
// fixed values, since status rules only look at reachability.
func (r *AlertRule) Normalize() {
	if r.RuleType == RuleStatus {
		r.ComparisonOperator = OpEqual
		r.Threshold = 0
	}
	if r.NotificationMethod == "" {
		r.NotificationMethod = MethodPush
	}
}

// Validate normalizes r and checks it. thresholdSet tells whether the client
// supplied a threshold at all; a zero threshold is legal for metric rules.
func (r *AlertRule) Validate(thresholdSet bool) error {
	r.Normalize()

	if r.ServiceID == 0 {
		return &ValidationError{Field: "service_id", Msg: "is required"}
	}

	switch r.RuleType {
	case RuleStatus:
	case RuleCPU, RuleMemory, RuleResponseTime:
		if !thresholdSet {
			return &ValidationError{Field: "threshold", Msg: fmt.Sprintf("is required for %s rules", r.RuleType)}
		}
		switch r.ComparisonOperator {
		case OpGreater, OpLess, OpGreaterEqual, OpLessEqual:
		default:
			return &ValidationError{Field: "comparison_operator", Msg: fmt.Sprintf("unsupported operator %q", r.ComparisonOperator)}
		}
	default:
		return &ValidationError{Field: "rule_type", Msg: fmt.Sprintf("unsupported rule type %q", r.RuleType)}
	}

	switch r.NotificationMethod {
	case MethodEmail, MethodPush:
	default:
		return &ValidationError{Field: "notification_method", Msg: fmt.Sprintf("unsupported method %q", r.NotificationMethod)}
	}
	return nil
}
