package monitor

import (
	"context"
	"errors"

	"github.com/fuomag9/servicewatch/internal/models"
)

// ErrTickInProgress is returned when a tick is requested while another runs.
var ErrTickInProgress = errors.New("monitor: a health check tick is already in progress")

// Prober checks one service. It never fails: every outcome, including
// network errors, is expressed in the returned result.
type Prober interface {
	Probe(ctx context.Context, svc *models.Service) *models.ProbeResult
}

// Broadcaster fans a typed payload out to live subscribers.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// ResultEvaluator turns a batch of fresh results into notifications.
type ResultEvaluator interface {
	Evaluate(ctx context.Context, results []*models.ProbeResult) []*models.Notification
}

// TickReport summarizes one scheduler tick.
type TickReport struct {
	Checked       int                   `json:"checked"`
	Offline       int                   `json:"offline"`
	Notifications int                   `json:"notifications"`
	Results       []*models.ProbeResult `json:"results"`
}

// Event types pushed to websocket clients.
const (
	EventMetricsUpdate = "metrics-update"
)
