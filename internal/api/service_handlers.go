package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fuomag9/servicewatch/internal/models"
	"github.com/fuomag9/servicewatch/internal/monitor"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/uptime"
)

const recentResultsLimit = 50

// HealthChecker runs probes on demand.
type HealthChecker interface {
	Tick(ctx context.Context) (monitor.TickReport, error)
	CheckService(ctx context.Context, serviceID int64) (*models.ProbeResult, error)
}

// URLValidator vets a service URL before it is stored.
type URLValidator interface {
	ValidateURL(ctx context.Context, rawURL string) error
}

// ServiceView is a service with its most recent probe. Status is unknown
// and LatestResult null until the first probe.
type ServiceView struct {
	models.Service
	Status       models.Status       `json:"status"`
	LatestResult *models.ProbeResult `json:"latest_result"`
}

// ServiceDetail adds recent history and 24h uptime to a ServiceView.
type ServiceDetail struct {
	ServiceView
	RecentResults []models.ProbeResult `json:"recent_results"`
	Uptime        *uptime.Stats        `json:"uptime_24h"`
}

type serviceRequest struct {
	Name *string `json:"name"`
	URL  *string `json:"url"`
}

func newServiceView(svc models.Service, latest *models.ProbeResult) ServiceView {
	v := ServiceView{Service: svc, Status: models.StatusUnknown}
	if latest != nil {
		v.Status = latest.Status
		v.LatestResult = latest
	}
	return v
}

// loadService returns the service in the {id} path parameter if the current
// user may see it. Services of other owners look like missing ones.
func loadService(r *http.Request, st *store.Store) (*models.Service, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return nil, store.ErrNotFound
	}
	svc, err := st.GetService(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if owner := currentUser(r).OwnerScope(); owner != 0 && svc.OwnerID != owner {
		return nil, store.ErrNotFound
	}
	return svc, nil
}

// HandleGetServices returns every visible service with its latest result.
func HandleGetServices(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services, err := st.ListServices(r.Context(), currentUser(r).OwnerScope())
		if err != nil {
			writeStoreError(w, logger, err, "services")
			return
		}

		ids := make([]int64, 0, len(services))
		for _, svc := range services {
			ids = append(ids, svc.ID)
		}
		latest, err := st.LatestResults(r.Context(), ids)
		if err != nil {
			writeStoreError(w, logger, err, "services")
			return
		}
		byService := make(map[int64]*models.ProbeResult, len(latest))
		for i := range latest {
			byService[latest[i].ServiceID] = &latest[i]
		}

		out := make([]ServiceView, 0, len(services))
		for _, svc := range services {
			out = append(out, newServiceView(svc, byService[svc.ID]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleGetService returns one service with its recent history.
func HandleGetService(st *store.Store, calc *uptime.Calculator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		recent, err := st.History(r.Context(), store.HistoryQuery{ServiceID: svc.ID, Limit: recentResultsLimit})
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		var latest *models.ProbeResult
		if len(recent) > 0 {
			latest = &recent[0]
		}
		stats, err := calc.ForPeriod(r.Context(), svc.ID, 24*time.Hour)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		writeJSON(w, http.StatusOK, ServiceDetail{
			ServiceView:   newServiceView(*svc, latest),
			RecentResults: recent,
			Uptime:        stats,
		})
	}
}

// HandleCreateService registers a new service owned by the caller.
func HandleCreateService(st *store.Store, validator URLValidator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req serviceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == nil || req.URL == nil {
			writeError(w, http.StatusBadRequest, "Name and URL are required")
			return
		}

		user := currentUser(r)
		svc := &models.Service{OwnerID: user.ID, Name: *req.Name, URL: *req.URL}
		if err := svc.Validate(); err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		if err := validator.ValidateURL(r.Context(), svc.URL); err != nil {
			writeError(w, http.StatusBadRequest, "URL rejected: "+err.Error())
			return
		}

		if err := st.CreateService(r.Context(), svc); err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		activity(r.Context(), st, logger, &svc.ID, models.LogInfo,
			fmt.Sprintf("Service %q created by %s (%s)", svc.Name, user.Name, svc.URL))
		logger.Info("service created", "service_id", svc.ID, "user_id", user.ID)
		writeJSON(w, http.StatusCreated, newServiceView(*svc, nil))
	}
}

// HandleUpdateService changes the name and/or URL of a service.
func HandleUpdateService(st *store.Store, validator URLValidator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		var req serviceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		oldURL := svc.URL
		if req.Name != nil {
			svc.Name = *req.Name
		}
		if req.URL != nil {
			svc.URL = *req.URL
		}
		if err := svc.Validate(); err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		if svc.URL != oldURL {
			if err := validator.ValidateURL(r.Context(), svc.URL); err != nil {
				writeError(w, http.StatusBadRequest, "URL rejected: "+err.Error())
				return
			}
		}

		if err := st.UpdateService(r.Context(), svc); err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		latest, err := st.LatestResult(r.Context(), svc.ID)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		activity(r.Context(), st, logger, &svc.ID, models.LogInfo,
			fmt.Sprintf("Service %q updated by %s", svc.Name, currentUser(r).Name))
		writeJSON(w, http.StatusOK, newServiceView(*svc, latest))
	}
}

// HandleDeleteService deletes a service with its results, rules and
// notifications.
func HandleDeleteService(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		if err := st.DeleteService(r.Context(), svc.ID); err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}

		activity(r.Context(), st, logger, nil, models.LogWarning,
			fmt.Sprintf("Service %q deleted by %s", svc.Name, currentUser(r).Name))
		logger.Info("service deleted", "service_id", svc.ID, "user_id", currentUser(r).ID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Service deleted successfully"})
	}
}

// HandleCheckService probes one service immediately.
func HandleCheckService(st *store.Store, checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		result, err := checker.CheckService(r.Context(), svc.ID)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Health check completed",
			"result":  result,
		})
	}
}

// tickWriteMargin is added to the tick timeout to leave room for the response.
const tickWriteMargin = 10 * time.Second

// HandleTriggerHealthCheck runs a full tick now. It answers 409 while a tick
// is already running. The write deadline is extended past the server default
// to the tick timeout; a zero timeout leaves the tick and the write unbounded.
func HandleTriggerHealthCheck(checker HealthChecker, tickTimeout time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var deadline time.Time
		if tickTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, tickTimeout)
			defer cancel()
			deadline = time.Now().Add(tickTimeout + tickWriteMargin)
		}
		if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Warn("extend write deadline", "err", err)
		}

		report, err := checker.Tick(ctx)
		if errors.Is(err, monitor.ErrTickInProgress) {
			writeError(w, http.StatusConflict, "A health check is already running")
			return
		}
		if err != nil {
			logger.Error("manual health check", "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to run health check")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Health check completed",
			"report":  report,
		})
	}
}

// HandleGetServiceUptime returns uptime stats and an hourly breakdown.
func HandleGetServiceUptime(st *store.Store, calc *uptime.Calculator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := loadService(r, st)
		if err != nil {
			writeStoreError(w, logger, err, "Service")
			return
		}
		hours := intQuery(r, "hours", 24, maxHistoryHours)

		stats, err := calc.ForPeriod(r.Context(), svc.ID, time.Duration(hours)*time.Hour)
		if err != nil {
			writeStoreError(w, logger, err, "uptime")
			return
		}
		hourly, err := calc.Hourly(r.Context(), svc.ID, hours)
		if err != nil {
			writeStoreError(w, logger, err, "uptime")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "hourly": hourly})
	}
}
