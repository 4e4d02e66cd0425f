package models

import "time"

// Status is the classified outcome of a probe.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"

	// StatusUnknown is reported for services that have never been probed.
	// It is never stored.
	StatusUnknown Status = "unknown"
)

// ProbeResult is one timestamped outcome of a probe. Rows are append-only.
type ProbeResult struct {
	ID             int64    `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ServiceID      int64    `json:"service_id" gorm:"column:service_id"`
	Status         Status   `json:"status" gorm:"column:status"`
	StatusCode     int      `json:"status_code" gorm:"column:status_code"`
	ResponseTimeMs *int64   `json:"response_time_ms" gorm:"column:response_time_ms"`
	CPUUsage       *float64 `json:"cpu_usage,omitempty" gorm:"column:cpu_usage"`
	MemoryUsage    *float64 `json:"memory_usage,omitempty" gorm:"column:memory_usage"`
	// LoadSimulated marks CPU and memory as derived from latency, not measured.
	LoadSimulated bool      `json:"load_simulated" gorm:"column:load_simulated"`
	Error         *string   `json:"error,omitempty" gorm:"column:error_message"`
	CheckedAt     time.Time `json:"checked_at" gorm:"column:checked_at"`
}

// TableName specifies the table name for ProbeResult
func (ProbeResult) TableName() string {
	return "probe_results"
}

// Reachable reports whether the target answered with an HTTP response.
func (r *ProbeResult) Reachable() bool {
	return r.Status == StatusOnline || r.Status == StatusDegraded
}
