package config

import (
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"ENVIRONMENT", "PORT", "DATABASE_TYPE", "DATABASE_DSN", "JWT_SECRET", "APP_URL",
	"CHECK_SCHEDULE", "PROBE_TIMEOUT", "PROBE_CONCURRENCY", "PROBE_FOLLOW_REDIRECTS",
	"SIMULATED_LOAD", "ALERT_COOLDOWN", "ALERT_EMAIL_TO", "SMTP_HOST", "SMTP_FROM",
	"METRIC_RETENTION_DAYS", "RETENTION_SCHEDULE", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Monitor.Schedule != "* * * * *" {
		t.Fatalf("schedule = %q", cfg.Monitor.Schedule)
	}
	if cfg.Monitor.Timeout != 10*time.Second {
		t.Fatalf("timeout = %s, want 10s", cfg.Monitor.Timeout)
	}
	if cfg.Monitor.SimulatedLoad {
		t.Fatal("simulated load should be off by default")
	}
	if cfg.Alert.Cooldown != 0 {
		t.Fatalf("cooldown = %s, want 0", cfg.Alert.Cooldown)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("expected a generated development secret")
	}
	if !strings.HasPrefix(cfg.Database.DSN, "postgresql://") {
		t.Fatalf("dsn = %q", cfg.Database.DSN)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("PROBE_TIMEOUT", "3s")
	t.Setenv("PROBE_CONCURRENCY", "4")
	t.Setenv("SIMULATED_LOAD", "true")
	t.Setenv("ALERT_COOLDOWN", "15m")
	t.Setenv("APP_URL", "https://watch.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "servicewatch.db" {
		t.Fatalf("sqlite dsn = %q", cfg.Database.DSN)
	}
	if cfg.Monitor.Timeout != 3*time.Second || cfg.Monitor.Concurrency != 4 {
		t.Fatalf("monitor = %+v", cfg.Monitor)
	}
	if !cfg.Monitor.SimulatedLoad {
		t.Fatal("simulated load not enabled")
	}
	if cfg.Alert.Cooldown != 15*time.Minute {
		t.Fatalf("cooldown = %s", cfg.Alert.Cooldown)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://watch.example.com" {
		t.Fatalf("cors = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing production secret": {"ENVIRONMENT": "production"},
		"short production secret":   {"ENVIRONMENT": "production", "JWT_SECRET": "0123456789abcdef"},
		"bad schedule":              {"ENVIRONMENT": "development", "CHECK_SCHEDULE": "every minute"},
		"bad database":              {"ENVIRONMENT": "development", "DATABASE_TYPE": "mysql"},
		"zero concurrency":          {"ENVIRONMENT": "development", "PROBE_CONCURRENCY": "0"},
		"smtp without sender":       {"ENVIRONMENT": "development", "SMTP_HOST": "mail.example.com"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	if got := (LogConfig{Level: "DEBUG"}).SlogLevel().String(); got != "DEBUG" {
		t.Fatalf("level = %s", got)
	}
	if got := (LogConfig{Level: "nonsense"}).SlogLevel().String(); got != "INFO" {
		t.Fatalf("level = %s", got)
	}
}
