package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/store"
)

const (
	maxHistoryHours     = 24 * 90
	historyLimit        = 100
	serviceHistoryLimit = 1000
)

// ResultWithService is a probe result annotated with its service name.
type ResultWithService struct {
	models.ProbeResult
	ServiceName string `json:"service_name"`
}

func withServiceNames(r *http.Request, st *store.Store, results []models.ProbeResult) ([]ResultWithService, error) {
	ids := make([]int64, 0, len(results))
	seen := make(map[int64]bool)
	for _, res := range results {
		if !seen[res.ServiceID] {
			seen[res.ServiceID] = true
			ids = append(ids, res.ServiceID)
		}
	}
	services, err := st.ServicesByID(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	out := make([]ResultWithService, 0, len(results))
	for _, res := range results {
		name := "Unknown Service"
		if svc, ok := services[res.ServiceID]; ok {
			name = svc.Name
		}
		out = append(out, ResultWithService{ProbeResult: res, ServiceName: name})
	}
	return out, nil
}

// HandleGetServiceMetrics returns the results of one service over the last
// hours, newest first.
func HandleGetServiceMetrics(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		hours := intQuery(r, "hours", 24, maxHistoryHours)
		results, err := st.History(r.Context(), store.HistoryQuery{
			ServiceID: svc.ID,
			Since:     time.Now().Add(-time.Duration(hours) * time.Hour),
			Limit:     serviceHistoryLimit,
		})
		if err != nil {
			writeStoreError(w, logger, err, "metrics")
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// HandleGetLatestMetrics returns the newest result of every visible service.
func HandleGetLatestMetrics(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ids []int64
		if owner := currentUser(r).OwnerScope(); owner != 0 {
			services, err := st.ListServices(r.Context(), owner)
			if err != nil {
				writeStoreError(w, logger, err, "metrics")
				return
			}
			ids = make([]int64, 0, len(services))
			for _, svc := range services {
				ids = append(ids, svc.ID)
			}
		}

		latest, err := st.LatestResults(r.Context(), ids)
		if err != nil {
			writeStoreError(w, logger, err, "metrics")
			return
		}
		out, err := withServiceNames(r, st, latest)
		if err != nil {
			writeStoreError(w, logger, err, "metrics")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleGetMetricsHistory returns up to 100 results from the last hours,
// optionally for one service.
func HandleGetMetricsHistory(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := store.HistoryQuery{
			Owner: currentUser(r).OwnerScope(),
			Limit: intQuery(r, "limit", historyLimit, serviceHistoryLimit),
		}
		if raw := r.URL.Query().Get("service_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "Invalid service_id")
				return
			}
			q.ServiceID = id
		}
		hours := intQuery(r, "hours", 24, maxHistoryHours)
		q.Since = time.Now().Add(-time.Duration(hours) * time.Hour)

		results, err := st.History(r.Context(), q)
		if err != nil {
			writeStoreError(w, logger, err, "metrics")
			return
		}
		out, err := withServiceNames(r, st, results)
		if err != nil {
			writeStoreError(w, logger, err, "metrics")
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
