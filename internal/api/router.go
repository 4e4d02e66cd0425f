package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/fuomag9/servicewatch/internal/auth"
	"github.com/fuomag9/servicewatch/internal/config"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/uptime"
)

// LiveChannel is the websocket endpoint.
type LiveChannel interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Config    *config.Config
	Store     *store.Store
	Tokens    *auth.Tokens
	Live      LiveChannel
	Checker   HealthChecker
	Notifier  Notifier
	Validator URLValidator
	Uptime    *uptime.Calculator
	Logger    *slog.Logger
}

// NewRouter creates a new HTTP router. ctx bounds the background cleanup of
// rate limiter state.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	logger := d.Logger.With("module", "api")
	st := d.Store

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(d.Config.Environment == "production"))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	apiLimiter := NewRateLimiter(rate.Limit(20), 60, 15*time.Minute)
	authLimiter := NewRateLimiter(rate.Every(12*time.Second), 5, 15*time.Minute)
	go apiLimiter.Cleanup(ctx, 5*time.Minute)
	go authLimiter.Cleanup(ctx, 5*time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimitMiddleware(apiLimiter, "Rate limit exceeded. Please try again later."))

		r.Get("/health", handleHealth)
		r.Get("/openapi.json", handleOpenAPI)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(authLimiter, "Too many attempts. Please try again later."))
			r.Post("/auth/register", HandleRegister(st, d.Tokens, logger))
			r.Post("/auth/login", HandleLogin(st, d.Tokens, logger))
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Tokens, st, logger))

			r.Get("/user/me", HandleGetCurrentUser())
			r.With(RequireAdmin).Get("/users", HandleListUsers(st, logger))

			r.Get("/services", HandleGetServices(st, logger))
			r.Get("/services/{id}", HandleGetService(st, d.Uptime, logger))
			r.Get("/services/{id}/metrics", HandleGetServiceMetrics(st, logger))
			r.Get("/services/{id}/uptime", HandleGetServiceUptime(st, d.Uptime, logger))

			r.Get("/metrics/latest", HandleGetLatestMetrics(st, logger))
			r.Get("/metrics/history", HandleGetMetricsHistory(st, logger))

			r.Get("/alerts/rules", HandleGetAlertRules(st, logger))
			r.Get("/alerts/notifications", HandleGetNotifications(st, logger))

			r.Get("/logs", HandleGetLogs(st, logger))
			r.Get("/dashboard/stats", HandleGetDashboardStats(st, d.Uptime, logger))

			r.Group(func(r chi.Router) {
				r.Use(RequireWrite)

				r.Post("/services", HandleCreateService(st, d.Validator, logger))
				r.Put("/services/{id}", HandleUpdateService(st, d.Validator, logger))
				r.Delete("/services/{id}", HandleDeleteService(st, logger))
				r.Post("/services/{id}/health-check", HandleCheckService(st, d.Checker, logger))
				r.Post("/health-check", HandleTriggerHealthCheck(d.Checker, d.Config.Monitor.TickTimeout, logger))

				r.Post("/alerts/rules", HandleCreateAlertRule(st, logger))
				r.Put("/alerts/rules/{id}", HandleUpdateAlertRule(st, logger))
				r.Delete("/alerts/rules/{id}", HandleDeleteAlertRule(st, logger))
				r.Post("/alerts/notify", HandleSendNotification(st, d.Notifier, logger))
			})
		})
	})

	// Prometheus metrics endpoint (no auth required)
	r.Get("/metrics", HandlePrometheusMetrics(st, d.Uptime, d.Live, logger))

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/api/openapi.json")))

	if d.Live != nil {
		r.Get("/ws", d.Live.HandleWebSocket)
	}

	r.Get("/health", handleHealth)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
