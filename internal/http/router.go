// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-cars-backend/internal/checker"
	"github.com/tbourn/go-cars-backend/internal/config"
	"github.com/tbourn/go-cars-backend/internal/domain"
	"github.com/tbourn/go-cars-backend/internal/http/handlers"
	"github.com/tbourn/go-cars-backend/internal/http/middleware"
	"github.com/tbourn/go-cars-backend/internal/probe"
	"github.com/tbourn/go-cars-backend/internal/repo"
	"github.com/tbourn/go-cars-backend/internal/services"
)

// catalogShim adapts the repository free functions to the checker.Catalog
// interface expected by the Checker. This keeps the checker decoupled from
// the concrete repo package while reusing existing functions.
type catalogShim struct{}

// ListCandidates proxies repo.ListCandidates.
func (catalogShim) ListCandidates(ctx context.Context, db *gorm.DB, priority bool, now time.Time, limit int) ([]domain.Car, error) {
	return repo.ListCandidates(ctx, db, priority, now, limit)
}

// ApplyOutcomes proxies repo.ApplyOutcomes.
func (catalogShim) ApplyOutcomes(ctx context.Context, db *gorm.DB, outcomes []probe.Outcome, now time.Time, deleteAfter int) (repo.ApplyResult, error) {
	return repo.ApplyOutcomes(ctx, db, outcomes, now, deleteAfter)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, builds the availability checker stack (probe client, checker,
// service, scheduler), and mounts the versioned admin API under /api/v*.
//
// It returns the scheduler when the background loop is enabled (start it with
// go sched.Start(ctx)), or nil when disabled.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP)
//  8. CORS and Security headers
//  9. Gzip compression
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *checker.Scheduler {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// 9) Compress JSON responses (stats and recent-activity payloads benefit)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: service ← checker ← probe client/repo/db
	ck := cfg.Checker
	client := probe.NewClient(probe.Config{
		Timeout:        ck.Timeout,
		ConnectTimeout: ck.ConnectTimeout,
		MaxRetries:     ck.MaxRetries,
		RetryDelay:     ck.RetryDelay,
		RateLimitDelay: ck.RateLimitDelay,
		MaxConcurrent:  ck.MaxConcurrent,
	})
	chk := checker.New(db, client, catalogShim{})
	chk.BatchSize = ck.BatchSize
	chk.MaxConcurrent = ck.MaxConcurrent
	chk.MaxEntries = ck.MaxEntries
	chk.DeleteAfterFailures = ck.DeleteAfterFailures

	svc := services.NewAvailabilityService(db, chk)
	svc.StaleAfter = ck.RegularInterval

	var sched *checker.Scheduler
	var schedStatus handlers.SchedulerStatus
	if ck.Enabled {
		sched = checker.NewScheduler(svc.RunCheck)
		sched.RegularInterval = ck.RegularInterval
		sched.PriorityInterval = ck.PriorityInterval
		sched.WakeInterval = ck.WakeInterval
		sched.WarmupDelay = ck.WarmupDelay
		sched.MaxEntries = ck.MaxEntries
		schedStatus = sched
	}

	h := handlers.New(svc, schedStatus, ck)

	// Admin API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		admin := api.Group("/admin/availability")
		admin.POST("/check", h.StartCheck)
		admin.POST("/check-sync", h.RunCheckSync)
		admin.GET("/report", h.GetLastReport)
		admin.GET("/stats", h.GetStats)
		admin.GET("/recent", h.RecentActivity)
		admin.GET("/config", h.GetConfig)
	}

	return sched
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
