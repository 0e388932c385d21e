// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, the database path, the availability
// checker tunables, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-cars-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CheckerConfig holds the availability checker tunables.
type CheckerConfig struct {
	// Probe client
	Timeout        time.Duration // CHECK_TIMEOUT: total per-request budget
	ConnectTimeout time.Duration // CHECK_CONNECT_TIMEOUT: dial phase budget
	MaxRetries     int           // CHECK_MAX_RETRIES: extra attempts for retryable failures
	RetryDelay     time.Duration // CHECK_RETRY_DELAY: base exponential backoff
	RateLimitDelay time.Duration // CHECK_RATE_LIMIT_DELAY: jittered per-request pacing

	// Batch orchestration
	BatchSize           int // CHECK_BATCH_SIZE: entries per sub-batch
	MaxConcurrent       int // CHECK_MAX_CONCURRENT: global in-flight probe cap
	MaxEntries          int // CHECK_MAX_ENTRIES: per-run candidate cap
	DeleteAfterFailures int // CHECK_DELETE_AFTER_FAILURES: 1 = delete on first failure

	// Scheduler
	RegularInterval  time.Duration // CHECK_REGULAR_INTERVAL: broad sweep cadence
	PriorityInterval time.Duration // CHECK_PRIORITY_INTERVAL: fast re-check cadence
	WakeInterval     time.Duration // CHECK_WAKE_INTERVAL: loop wake granularity
	WarmupDelay      time.Duration // CHECK_WARMUP_DELAY: delay before the first run
	Enabled          bool          // CHECK_SCHEDULER_ENABLED: start the background loop
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
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath  string // SQLite path
	Checker CheckerConfig

	// Rate limiting (admin surface)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

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
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "cars.db"),
		Checker: CheckerConfig{
			Timeout:        getdur("CHECK_TIMEOUT", 15*time.Second),
			ConnectTimeout: getdur("CHECK_CONNECT_TIMEOUT", 5*time.Second),
			MaxRetries:     getint("CHECK_MAX_RETRIES", 2),
			RetryDelay:     getdur("CHECK_RETRY_DELAY", time.Second),
			RateLimitDelay: getdur("CHECK_RATE_LIMIT_DELAY", 100*time.Millisecond),

			BatchSize:           getint("CHECK_BATCH_SIZE", 50),
			MaxConcurrent:       getint("CHECK_MAX_CONCURRENT", 10),
			MaxEntries:          getint("CHECK_MAX_ENTRIES", 1000),
			DeleteAfterFailures: getint("CHECK_DELETE_AFTER_FAILURES", 1),

			RegularInterval:  getdur("CHECK_REGULAR_INTERVAL", 24*time.Hour),
			PriorityInterval: getdur("CHECK_PRIORITY_INTERVAL", 6*time.Hour),
			WakeInterval:     getdur("CHECK_WAKE_INTERVAL", time.Hour),
			WarmupDelay:      getdur("CHECK_WARMUP_DELAY", 5*time.Minute),
			Enabled:          getbool("CHECK_SCHEDULER_ENABLED", true),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-cars-backend"),
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
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if err := validateChecker(cfg.Checker); err != nil {
		return cfg, err
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// validateChecker checks the availability-checker tunables.
func validateChecker(c CheckerConfig) error {
	if c.Timeout <= 0 || c.ConnectTimeout <= 0 {
		return errors.New("CHECK_TIMEOUT and CHECK_CONNECT_TIMEOUT must be positive durations")
	}
	if c.MaxRetries < 0 {
		return errors.New("CHECK_MAX_RETRIES must be >= 0")
	}
	if c.RetryDelay <= 0 {
		return errors.New("CHECK_RETRY_DELAY must be a positive duration")
	}
	if c.RateLimitDelay < 0 {
		return errors.New("CHECK_RATE_LIMIT_DELAY must be >= 0")
	}
	if c.BatchSize < 1 {
		return errors.New("CHECK_BATCH_SIZE must be >= 1")
	}
	if c.MaxConcurrent < 1 {
		return errors.New("CHECK_MAX_CONCURRENT must be >= 1")
	}
	if c.MaxEntries < 1 {
		return errors.New("CHECK_MAX_ENTRIES must be >= 1")
	}
	if c.DeleteAfterFailures < 1 {
		return errors.New("CHECK_DELETE_AFTER_FAILURES must be >= 1")
	}
	if c.RegularInterval <= 0 || c.PriorityInterval <= 0 || c.WakeInterval <= 0 {
		return errors.New("checker intervals must be positive durations")
	}
	if c.WarmupDelay < 0 {
		return errors.New("CHECK_WARMUP_DELAY must be >= 0")
	}
	return nil
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
