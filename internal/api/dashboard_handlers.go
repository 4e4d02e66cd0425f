package api

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/uptime"
)

const (
	logsLimit = 10
	// slowResponseMs marks a latest result as needing attention on the dashboard.
	slowResponseMs = 1000
)

// DashboardStats summarizes the services visible to the caller.
type DashboardStats struct {
	TotalServices   int64   `json:"total_services"`
	OnlineServices  int     `json:"online_services"`
	ActiveAlerts    int     `json:"active_alerts"`
	AvgResponseTime int64   `json:"avg_response_time"`
	Uptime          float64 `json:"uptime"`
}

// HandleGetDashboardStats computes the headline numbers from each service's
// latest result plus 24h uptime.
func HandleGetDashboardStats(st *store.Store, calc *uptime.Calculator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := currentUser(r).OwnerScope()
		services, err := st.ListServices(r.Context(), owner)
		if err != nil {
			writeStoreError(w, logger, err, "dashboard stats")
			return
		}
		ids := make([]int64, 0, len(services))
		for _, svc := range services {
			ids = append(ids, svc.ID)
		}
		latest, err := st.LatestResults(r.Context(), ids)
		if err != nil {
			writeStoreError(w, logger, err, "dashboard stats")
			return
		}
		overall, err := calc.Overall(r.Context(), owner, 24*time.Hour)
		if err != nil {
			writeStoreError(w, logger, err, "dashboard stats")
			return
		}

		stats := summarize(latest)
		stats.TotalServices = int64(len(services))
		stats.Uptime = overall.UptimePercentage
		writeJSON(w, http.StatusOK, stats)
	}
}

func summarize(latest []models.ProbeResult) DashboardStats {
	var (
		stats   DashboardStats
		sum     int64
		samples int64
	)
	for _, res := range latest {
		if res.Status == models.StatusOnline {
			stats.OnlineServices++
		}
		slow := res.ResponseTimeMs != nil && *res.ResponseTimeMs > slowResponseMs
		if res.Status == models.StatusOffline || slow {
			stats.ActiveAlerts++
		}
		if res.ResponseTimeMs != nil {
			sum += *res.ResponseTimeMs
			samples++
		}
	}
	if samples > 0 {
		stats.AvgResponseTime = int64(math.Round(float64(sum) / float64(samples)))
	}
	return stats
}

// LogView is a log entry with its service name, empty once the service is gone.
type LogView struct {
	models.LogEntry
	ServiceName string `json:"service_name,omitempty"`
}

// HandleGetLogs returns the newest activity log entries.
func HandleGetLogs(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := st.ListLogs(r.Context(), currentUser(r).OwnerScope(), intQuery(r, "limit", logsLimit, 500))
		if err != nil {
			writeStoreError(w, logger, err, "logs")
			return
		}
		ids := make([]int64, 0, len(entries))
		for _, e := range entries {
			if e.ServiceID != nil {
				ids = append(ids, *e.ServiceID)
			}
		}
		services, err := st.ServicesByID(r.Context(), ids)
		if err != nil {
			writeStoreError(w, logger, err, "logs")
			return
		}

		out := make([]LogView, 0, len(entries))
		for _, e := range entries {
			v := LogView{LogEntry: e}
			if e.ServiceID != nil {
				if svc, ok := services[*e.ServiceID]; ok {
					v.ServiceName = svc.Name
				}
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}
