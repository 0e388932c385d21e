package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v1/") // no leading slash + trailing slash -> "/api/v1"

	// App
	t.Setenv("DB_PATH", "db.sqlite")

	// Checker
	t.Setenv("CHECK_TIMEOUT", "20s")
	t.Setenv("CHECK_CONNECT_TIMEOUT", "3s")
	t.Setenv("CHECK_MAX_RETRIES", "4")
	t.Setenv("CHECK_RETRY_DELAY", "500ms")
	t.Setenv("CHECK_RATE_LIMIT_DELAY", "50ms")
	t.Setenv("CHECK_BATCH_SIZE", "100")
	t.Setenv("CHECK_MAX_CONCURRENT", "25")
	t.Setenv("CHECK_MAX_ENTRIES", "2000")
	t.Setenv("CHECK_DELETE_AFTER_FAILURES", "3")
	t.Setenv("CHECK_REGULAR_INTERVAL", "6h")
	t.Setenv("CHECK_PRIORITY_INTERVAL", "2h")
	t.Setenv("CHECK_WAKE_INTERVAL", "30m")
	t.Setenv("CHECK_WARMUP_DELAY", "10m")
	t.Setenv("CHECK_SCHEDULER_ENABLED", "off")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}

	// App + checker
	if cfg.DBPath != "db.sqlite" {
		t.Fatalf("db path unexpected: %+v", cfg)
	}
	wantChecker := CheckerConfig{
		Timeout:             20 * time.Second,
		ConnectTimeout:      3 * time.Second,
		MaxRetries:          4,
		RetryDelay:          500 * time.Millisecond,
		RateLimitDelay:      50 * time.Millisecond,
		BatchSize:           100,
		MaxConcurrent:       25,
		MaxEntries:          2000,
		DeleteAfterFailures: 3,
		RegularInterval:     6 * time.Hour,
		PriorityInterval:    2 * time.Hour,
		WakeInterval:        30 * time.Minute,
		WarmupDelay:         10 * time.Minute,
		Enabled:             false,
	}
	if !reflect.DeepEqual(cfg.Checker, wantChecker) {
		t.Fatalf("checker config unexpected:\n got %+v\nwant %+v", cfg.Checker, wantChecker)
	}

	// Rate limiting fell back to defaults.
	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limit fields unexpected: %+v", cfg)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %+v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security fields unexpected: %+v", cfg.Security)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure ||
		cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel fields unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8080" || cfg.DBPath != "cars.db" || cfg.APIBasePath != "/api/v1" {
		t.Fatalf("defaults unexpected: %+v", cfg)
	}
	c := cfg.Checker
	if c.Timeout != 15*time.Second || c.MaxRetries != 2 || c.BatchSize != 50 ||
		c.MaxConcurrent != 10 || c.MaxEntries != 1000 || c.DeleteAfterFailures != 1 {
		t.Fatalf("checker defaults unexpected: %+v", c)
	}
	if c.RegularInterval != 24*time.Hour || c.PriorityInterval != 6*time.Hour ||
		c.WakeInterval != time.Hour || c.WarmupDelay != 5*time.Minute || !c.Enabled {
		t.Fatalf("scheduler defaults unexpected: %+v", c)
	}
}

// --- validation errors ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"bad batch size", "CHECK_BATCH_SIZE", "0", "CHECK_BATCH_SIZE"},
		{"bad concurrency", "CHECK_MAX_CONCURRENT", "0", "CHECK_MAX_CONCURRENT"},
		{"bad max entries", "CHECK_MAX_ENTRIES", "-1", "CHECK_MAX_ENTRIES"},
		{"bad delete threshold", "CHECK_DELETE_AFTER_FAILURES", "0", "CHECK_DELETE_AFTER_FAILURES"},
		{"bad retries", "CHECK_MAX_RETRIES", "-2", "CHECK_MAX_RETRIES"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.val)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}
