// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and Redis connectivity, rate
// limiting, outbox draining, cron locking, and job execution.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "artpulse-notify")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RedisConfig defines connectivity for the shared Redis used by the rate
// limiter and the cron lock. An empty Addr disables Redis entirely: the rate
// limiter then runs on its process-local fallback and the cron lock reports
// itself as unsupported.
type RedisConfig struct {
	Addr     string // REDIS_ADDR, e.g. "localhost:6379"; empty = disabled
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// RateLimitConfig bounds write traffic per principal within a fixed window.
type RateLimitConfig struct {
	WriteLimit  int           // max write requests per principal per window
	WriteWindow time.Duration // window length
}

// OutboxConfig tunes the outbox worker.
type OutboxConfig struct {
	BatchSize         int           // rows claimed per drain pass
	MaxErrorLen       int           // stored error message truncation
	ProcessingTimeout time.Duration // PROCESSING older than this is considered stale
}

// CronConfig tunes the cron coordination layer.
type CronConfig struct {
	LockTTL time.Duration // expiry applied to acquired cron locks
}

// JobsConfig tunes the named-job runner.
type JobsConfig struct {
	LookbackWindow time.Duration // single-flight window for running jobs
	MaxMessageLen  int           // stored job message/error truncation
	InboxRetention time.Duration // READ inbox rows older than this are reaped
}

// DeliveryConfig selects and tunes the outbound notification sender.
type DeliveryConfig struct {
	Mode           string        // "log" or "webhook"
	WebhookURL     string        // target for webhook mode
	SendRatePerSec float64       // outbound sends per second (webhook throttle)
	Timeout        time.Duration // per-delivery HTTP timeout
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// API
	APIBasePath string // base path for API routes

	// Stores
	DBPath string // SQLite path
	Redis  RedisConfig

	// Core subsystems
	RateLimit RateLimitConfig
	Outbox    OutboxConfig
	Cron      CronConfig
	Jobs      JobsConfig
	Delivery  DeliveryConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// API
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Stores
		DBPath: getenv("DB_PATH", "artpulse.db"),
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		// Core subsystems
		RateLimit: RateLimitConfig{
			WriteLimit:  getint("RATE_WRITE_LIMIT", 30),
			WriteWindow: getdur("RATE_WRITE_WINDOW", time.Minute),
		},
		Outbox: OutboxConfig{
			BatchSize:         getint("OUTBOX_BATCH_SIZE", 25),
			MaxErrorLen:       getint("OUTBOX_MAX_ERROR_LEN", 500),
			ProcessingTimeout: getdur("OUTBOX_PROCESSING_TIMEOUT", 15*time.Minute),
		},
		Cron: CronConfig{
			LockTTL: getdur("CRON_LOCK_TTL", 5*time.Minute),
		},
		Jobs: JobsConfig{
			LookbackWindow: getdur("JOB_LOOKBACK_WINDOW", 10*time.Minute),
			MaxMessageLen:  getint("JOB_MAX_MESSAGE_LEN", 500),
			InboxRetention: getdur("INBOX_RETENTION", 90*24*time.Hour),
		},
		Delivery: DeliveryConfig{
			Mode:           strings.ToLower(getenv("DELIVERY_MODE", "log")),
			WebhookURL:     getenv("DELIVERY_WEBHOOK_URL", ""),
			SendRatePerSec: getfloat("DELIVERY_SEND_RATE", 10.0),
			Timeout:        getdur("DELIVERY_TIMEOUT", 10*time.Second),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "artpulse-notify"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateLimit.WriteLimit < 1 {
		return cfg, errors.New("RATE_WRITE_LIMIT must be >= 1")
	}
	if cfg.RateLimit.WriteWindow <= 0 {
		return cfg, errors.New("RATE_WRITE_WINDOW must be > 0")
	}
	if cfg.Outbox.BatchSize < 1 {
		return cfg, errors.New("OUTBOX_BATCH_SIZE must be >= 1")
	}
	if cfg.Outbox.MaxErrorLen < 1 {
		return cfg, errors.New("OUTBOX_MAX_ERROR_LEN must be >= 1")
	}
	if cfg.Outbox.ProcessingTimeout <= 0 {
		return cfg, errors.New("OUTBOX_PROCESSING_TIMEOUT must be > 0")
	}
	if cfg.Cron.LockTTL <= 0 {
		return cfg, errors.New("CRON_LOCK_TTL must be > 0")
	}
	if cfg.Jobs.LookbackWindow <= 0 {
		return cfg, errors.New("JOB_LOOKBACK_WINDOW must be > 0")
	}
	if cfg.Jobs.MaxMessageLen < 1 {
		return cfg, errors.New("JOB_MAX_MESSAGE_LEN must be >= 1")
	}
	if cfg.Jobs.InboxRetention <= 0 {
		return cfg, errors.New("INBOX_RETENTION must be > 0")
	}
	switch cfg.Delivery.Mode {
	case "log", "webhook":
	default:
		return cfg, errors.New("DELIVERY_MODE must be one of: log, webhook")
	}
	if cfg.Delivery.Mode == "webhook" && strings.TrimSpace(cfg.Delivery.WebhookURL) == "" {
		return cfg, errors.New("DELIVERY_WEBHOOK_URL must be set in webhook mode")
	}
	if cfg.Delivery.SendRatePerSec <= 0 {
		return cfg, errors.New("DELIVERY_SEND_RATE must be > 0")
	}
	if cfg.Delivery.Timeout <= 0 {
		return cfg, errors.New("DELIVERY_TIMEOUT must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures the base path starts with "/" and has no trailing
// slash (except the root path itself).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}
