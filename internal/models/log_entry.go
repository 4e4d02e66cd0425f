package models

import (
	"fmt"
	"time"
)

type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is a user-visible activity record. ServiceID is cleared when the
// service is deleted so history survives.
type LogEntry struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID *int64    `json:"service_id" gorm:"column:service_id"`
	Level     LogLevel  `json:"level" gorm:"column:level"`
	Message   string    `json:"message" gorm:"column:message"`
	Timestamp time.Time `json:"timestamp" gorm:"column:logged_at"`
}

// TableName specifies the table name for LogEntry
func (LogEntry) TableName() string {
	return "log_entries"
}

// ValidationError reports a bad field in client input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Msg)
}
