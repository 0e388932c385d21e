// Availability admin HTTP handlers.
//
// This file exposes REST endpoints for operating the listing availability
// checker:
//   - POST /admin/availability/check       (trigger a run in the background)
//   - POST /admin/availability/check-sync  (run inline, return the report)
//   - GET  /admin/availability/report      (last completed run report)
//   - GET  /admin/availability/stats       (catalog coverage snapshot)
//   - GET  /admin/availability/recent      (recently probed listings)
//   - GET  /admin/availability/config      (effective checker settings)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-cars-backend/internal/checker"
	"github.com/tbourn/go-cars-backend/internal/config"
	"github.com/tbourn/go-cars-backend/internal/domain"
	"github.com/tbourn/go-cars-backend/internal/http/middleware"
	"github.com/tbourn/go-cars-backend/internal/repo"
	"github.com/tbourn/go-cars-backend/internal/services"
	"github.com/tbourn/go-cars-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AvailabilityService defines the checker operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type AvailabilityService interface {
	// RunCheck executes one batch availability run. It returns
	// services.ErrRunInProgress when a run is already active.
	RunCheck(ctx context.Context, priority bool, maxEntries int) (checker.Report, error)
	// Running reports whether a run is currently active.
	Running() bool
	// LastReport returns the most recent completed run report and when it
	// finished, or services.ErrNoReport when no run has completed yet.
	LastReport() (checker.Report, time.Time, error)
	// Stats returns an aggregate coverage snapshot of the catalog.
	Stats(ctx context.Context) (repo.Stats, error)
	// RecentChecks returns the most recently probed listings.
	RecentChecks(ctx context.Context, limit int) ([]domain.Car, error)
}

// SchedulerStatus exposes the background loop's counters to the admin API.
// It is optional; a nil provider means the scheduler is disabled.
type SchedulerStatus interface {
	Status() checker.SchedulerStatus
}

//
// Handler wiring
//

// Handlers groups the availability admin endpoints. It depends on abstract
// service interfaces to keep transport concerns separate from checker logic.
type Handlers struct {
	svc   AvailabilityService
	sched SchedulerStatus
	cfg   config.CheckerConfig
}

// New constructs a Handlers instance bound to the given service. sched may
// be nil when the background scheduler is disabled.
func New(svc AvailabilityService, sched SchedulerStatus, cfg config.CheckerConfig) *Handlers {
	return &Handlers{svc: svc, sched: sched, cfg: cfg}
}

//
// DTOs
//

// CheckStartedResponse acknowledges a background run request.
type CheckStartedResponse struct {
	Status     string `json:"status" example:"started"`
	Priority   bool   `json:"priority"`
	MaxEntries int    `json:"max_entries"`
}

// StatsResponse wraps the coverage snapshot with run-state information.
type StatsResponse struct {
	Catalog   repo.Stats               `json:"catalog"`
	Running   bool                     `json:"running"`
	LastRunAt *time.Time               `json:"last_run_at,omitempty"`
	Scheduler *checker.SchedulerStatus `json:"scheduler,omitempty"`
}

// ReportResponse wraps a completed run report with its finish time.
type ReportResponse struct {
	Report     checker.Report `json:"report"`
	FinishedAt time.Time      `json:"finished_at"`
}

// RecentActivityResponse lists the most recently probed listings.
type RecentActivityResponse struct {
	Cars  []domain.Car `json:"cars"`
	Count int          `json:"count"`
}

// ConfigResponse is the effective checker configuration. Durations are
// rendered as Go duration strings (e.g. "15s").
type ConfigResponse struct {
	Timeout             string `json:"timeout"`
	ConnectTimeout      string `json:"connect_timeout"`
	MaxRetries          int    `json:"max_retries"`
	RetryDelay          string `json:"retry_delay"`
	RateLimitDelay      string `json:"rate_limit_delay"`
	BatchSize           int    `json:"batch_size"`
	MaxConcurrent       int    `json:"max_concurrent"`
	MaxEntries          int    `json:"max_entries"`
	DeleteAfterFailures int    `json:"delete_after_failures"`
	RegularInterval     string `json:"regular_interval"`
	PriorityInterval    string `json:"priority_interval"`
	SchedulerEnabled    bool   `json:"scheduler_enabled"`
}

//
// Helpers
//

// runParams parses the priority and max_entries query parameters, clamping
// max_entries to the configured per-run cap.
func (h *Handlers) runParams(c *gin.Context) (priority bool, maxEntries int) {
	priority, _ = strconv.ParseBool(c.Query("priority"))
	maxEntries = utils.AtoiDefault(c.Query("max_entries"), h.cfg.MaxEntries)
	if maxEntries < 1 || maxEntries > h.cfg.MaxEntries {
		maxEntries = h.cfg.MaxEntries
	}
	return
}

//
// Handlers
//

// StartCheck triggers an availability run in the background and returns
// immediately with 202 Accepted. Query parameters:
//
//	priority    - run the fast re-check sweep instead of the broad one
//	max_entries - cap candidates for this run (clamped to the configured max)
//
// Returns 409 when a run is already in progress.
func (h *Handlers) StartCheck(c *gin.Context) {
	if h.svc.Running() {
		fail(c, http.StatusConflict, ErrCodeConflict, "availability check already in progress")
		return
	}
	priority, maxEntries := h.runParams(c)

	lg := middleware.LoggerFrom(c)
	go func() {
		// Detached from the request: the run must outlive the HTTP call.
		if _, err := h.svc.RunCheck(context.Background(), priority, maxEntries); err != nil &&
			!errors.Is(err, services.ErrRunInProgress) {
			lg.Error().Err(err).Bool("priority", priority).Msg("background availability run failed")
		}
	}()

	ok(c, http.StatusAccepted, CheckStartedResponse{
		Status:     "started",
		Priority:   priority,
		MaxEntries: maxEntries,
	})
}

// RunCheckSync executes an availability run inline and returns the full
// report. Accepts the same query parameters as StartCheck. Returns 409 when
// a run is already in progress.
func (h *Handlers) RunCheckSync(c *gin.Context) {
	priority, maxEntries := h.runParams(c)

	report, err := h.svc.RunCheck(c.Request.Context(), priority, maxEntries)
	if err != nil {
		if errors.Is(err, services.ErrRunInProgress) {
			fail(c, http.StatusConflict, ErrCodeConflict, "availability check already in progress")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCheckFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, report)
}

// GetLastReport returns the report of the most recent completed run, or 404
// when no run has completed since startup.
func (h *Handlers) GetLastReport(c *gin.Context) {
	report, finishedAt, err := h.svc.LastReport()
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no availability run has completed yet")
		return
	}
	ok(c, http.StatusOK, ReportResponse{Report: report, FinishedAt: finishedAt})
}

// GetStats returns the catalog coverage snapshot plus current run state and,
// when the scheduler is enabled, its counters.
func (h *Handlers) GetStats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, err.Error())
		return
	}

	resp := StatsResponse{Catalog: stats, Running: h.svc.Running()}
	if _, at, err := h.svc.LastReport(); err == nil {
		resp.LastRunAt = &at
	}
	if h.sched != nil {
		st := h.sched.Status()
		resp.Scheduler = &st
	}
	ok(c, http.StatusOK, resp)
}

// RecentActivity returns listings ordered by most recent probe. The limit
// query parameter defaults to 20 and is clamped to [1,100].
func (h *Handlers) RecentActivity(c *gin.Context) {
	const (
		defaultLimit = 20
		maxLimit     = 100
	)
	limit := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	cars, err := h.svc.RecentChecks(c.Request.Context(), limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, RecentActivityResponse{Cars: cars, Count: len(cars)})
}

// GetConfig returns the effective checker configuration.
func (h *Handlers) GetConfig(c *gin.Context) {
	ok(c, http.StatusOK, ConfigResponse{
		Timeout:             h.cfg.Timeout.String(),
		ConnectTimeout:      h.cfg.ConnectTimeout.String(),
		MaxRetries:          h.cfg.MaxRetries,
		RetryDelay:          h.cfg.RetryDelay.String(),
		RateLimitDelay:      h.cfg.RateLimitDelay.String(),
		BatchSize:           h.cfg.BatchSize,
		MaxConcurrent:       h.cfg.MaxConcurrent,
		MaxEntries:          h.cfg.MaxEntries,
		DeleteAfterFailures: h.cfg.DeleteAfterFailures,
		RegularInterval:     h.cfg.RegularInterval.String(),
		PriorityInterval:    h.cfg.PriorityInterval.String(),
		SchedulerEnabled:    h.cfg.Enabled,
	})
}
