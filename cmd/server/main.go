package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fuomag9/servicewatch/internal/alert"
	"github.com/fuomag9/servicewatch/internal/api"
	"github.com/fuomag9/servicewatch/internal/auth"
	"github.com/fuomag9/servicewatch/internal/config"
	"github.com/fuomag9/servicewatch/internal/database"
	"github.com/fuomag9/servicewatch/internal/jobs"
	"github.com/fuomag9/servicewatch/internal/monitor"
	"github.com/fuomag9/servicewatch/internal/notification"
	"github.com/fuomag9/servicewatch/internal/store"
	"github.com/fuomag9/servicewatch/internal/uptime"
	"github.com/fuomag9/servicewatch/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Connect(cfg.Database, cfg.Environment == "development")
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get database connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(db, cfg.Database.Type); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	st := store.New(db)

	tokens := auth.NewTokens(cfg.JWTSecret, auth.DefaultTTL)

	// Initialize WebSocket hub
	hub := websocket.NewHub(tokens, cfg.CORSOrigins, logger)
	go hub.Run(ctx)

	dispatcher := notification.NewDispatcher(st, hub, notification.NewEmailSender(cfg.SMTP), cfg.Alert.EmailTo, logger)
	evaluator := alert.NewEvaluator(st, dispatcher, cfg.Alert.Cooldown, logger)

	prober := monitor.NewHTTPProber(monitor.HTTPProberOptions{
		Timeout:         cfg.Monitor.Timeout,
		FollowRedirects: cfg.Monitor.FollowRedirects,
		SimulatedLoad:   cfg.Monitor.SimulatedLoad,
	})
	executor := monitor.NewExecutor(st, prober, hub, evaluator, cfg.Monitor.Concurrency, logger)

	scheduler, err := jobs.NewScheduler(executor, st, jobs.Options{
		CheckSchedule:     cfg.Monitor.Schedule,
		RetentionSchedule: cfg.Retention.Schedule,
		RetentionDays:     cfg.Retention.Days,
		TickTimeout:       cfg.Monitor.TickTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	scheduler.Start()

	router := api.NewRouter(ctx, api.Deps{
		Config:    cfg,
		Store:     st,
		Tokens:    tokens,
		Live:      hub,
		Checker:   executor,
		Notifier:  dispatcher,
		Validator: monitor.NewSSRFProtection(cfg.AllowPrivateIPs),
		Uptime:    uptime.NewCalculator(st),
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment, "database", cfg.Database.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler did not stop in time", "err", err)
	}

	logger.Info("server exited")
	return nil
}
