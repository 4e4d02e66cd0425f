package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port            int
	Environment     string
	Database        DatabaseConfig
	JWTSecret       string
	CORSOrigins     []string
	AllowPrivateIPs bool
	Monitor         MonitorConfig
	Alert           AlertConfig
	SMTP            SMTPConfig
	Log             LogConfig
	Retention       RetentionConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string // postgres or sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// MonitorConfig controls the probe pipeline.
type MonitorConfig struct {
	Schedule        string
	Timeout         time.Duration
	Concurrency     int
	FollowRedirects bool
	SimulatedLoad   bool
	// TickTimeout bounds one scheduled tick. Zero disables the bound.
	TickTimeout time.Duration
}

// AlertConfig controls rule evaluation and delivery.
type AlertConfig struct {
	// Cooldown suppresses a rule while its last notification is younger
	// than this. Zero re-fires on every tick.
	Cooldown time.Duration
	EmailTo  string
}

// SMTPConfig is the outgoing mail relay. An empty Host disables email delivery.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type LogConfig struct {
	Level  string
	Format string
}

type RetentionConfig struct {
	Days     int
	Schedule string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "production")

	jwtSecret, err := loadJWTSecret(env)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: env,
		Database: DatabaseConfig{
			Type:         getEnv("DATABASE_TYPE", "postgres"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		},
		JWTSecret:       jwtSecret,
		CORSOrigins:     loadCORSOrigins(env),
		AllowPrivateIPs: getEnvBool("ALLOW_PRIVATE_IPS", false),
		Monitor: MonitorConfig{
			Schedule:        getEnv("CHECK_SCHEDULE", "* * * * *"),
			Timeout:         getEnvDuration("PROBE_TIMEOUT", 10*time.Second),
			Concurrency:     getEnvInt("PROBE_CONCURRENCY", 10),
			FollowRedirects: getEnvBool("PROBE_FOLLOW_REDIRECTS", false),
			SimulatedLoad:   getEnvBool("SIMULATED_LOAD", false),
			TickTimeout:     getEnvDuration("TICK_TIMEOUT", 5*time.Minute),
		},
		Alert: AlertConfig{
			Cooldown: getEnvDuration("ALERT_COOLDOWN", 0),
			EmailTo:  getEnv("ALERT_EMAIL_TO", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Retention: RetentionConfig{
			Days:     getEnvInt("METRIC_RETENTION_DAYS", 30),
			Schedule: getEnv("RETENTION_SCHEDULE", "14 3 * * *"),
		},
	}

	switch cfg.Database.Type {
	case "sqlite":
		cfg.Database.DSN = getEnv("DATABASE_DSN", "servicewatch.db")
	default:
		cfg.Database.DSN = getEnv("DATABASE_DSN", buildPostgresDSN())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func buildPostgresDSN() string {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "servicewatch")
	password := getEnv("POSTGRES_PASSWORD", "secret")
	dbName := getEnv("POSTGRES_DB", "servicewatch")
	sslMode := getEnv("POSTGRES_SSLMODE", "disable")

	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(user, password),
		Host:   fmt.Sprintf("%s:%s", host, port),
		Path:   dbName,
	}

	query := u.Query()
	query.Set("sslmode", sslMode)
	u.RawQuery = query.Encode()

	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}

		insecureSecrets := []string{
			"change-this-secret-in-production",
			"change-me-in-production",
			"secret",
			"password",
			"changeme",
		}
		for _, insecure := range insecureSecrets {
			if c.JWTSecret == insecure {
				return fmt.Errorf("JWT_SECRET is set to an insecure default value")
			}
		}
	}

	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be configured")
	}

	if c.Database.Type != "postgres" && c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if _, err := cron.ParseStandard(c.Monitor.Schedule); err != nil {
		return fmt.Errorf("invalid CHECK_SCHEDULE %q: %w", c.Monitor.Schedule, err)
	}
	if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
		return fmt.Errorf("invalid RETENTION_SCHEDULE %q: %w", c.Retention.Schedule, err)
	}

	if c.Monitor.Timeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive")
	}
	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("PROBE_CONCURRENCY must be at least 1")
	}
	if c.Monitor.TickTimeout < 0 {
		return fmt.Errorf("TICK_TIMEOUT must not be negative")
	}
	if c.Alert.Cooldown < 0 {
		return fmt.Errorf("ALERT_COOLDOWN must not be negative")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to info.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadJWTSecret(env string) (string, error) {
	secret := os.Getenv("JWT_SECRET")

	if secret == "" {
		if env == "production" {
			return "", fmt.Errorf("JWT_SECRET environment variable is required in production")
		}

		slog.Warn("JWT_SECRET not set, generating a random secret for development; tokens will not survive a restart")
		return generateRandomSecret()
	}

	if len(secret) < 16 {
		return "", fmt.Errorf("JWT_SECRET must be at least 16 characters long")
	}

	return secret, nil
}

func loadCORSOrigins(env string) []string {
	if appURL := getAppURL(); appURL != "" {
		return []string{appURL}
	}

	if env != "development" {
		slog.Warn("APP_URL not set, using default localhost origins")
	}
	return []string{"http://localhost:3000", "http://localhost:8080"}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func getAppURL() string {
	return strings.TrimRight(os.Getenv("APP_URL"), "/")
}
