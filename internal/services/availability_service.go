// Package services – AvailabilityService
//
// This file implements the AvailabilityService, the coordination layer
// between the HTTP admin surface, the background scheduler, and the batch
// checker. It serializes runs (only one may execute at a time across
// manual triggers and the scheduler), retains the most recent run report
// for the admin surface, and exposes the read-only catalog statistics.
package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-cars-backend/internal/checker"
	"github.com/tbourn/go-cars-backend/internal/domain"
	"github.com/tbourn/go-cars-backend/internal/repo"
)

// AvailabilityService exposes the checker use-cases: trigger a run, read
// the last run report, and read catalog coverage statistics.
type AvailabilityService struct {
	// DB is the GORM handle used for read-only statistics queries.
	DB *gorm.DB
	// Checker executes batch runs.
	Checker *checker.Checker
	// StaleAfter is the regular sweep cadence, used as the staleness
	// cutoff in coverage statistics.
	StaleAfter time.Duration

	mu         sync.Mutex
	running    bool
	lastReport *checker.Report
	lastRunAt  time.Time
}

// NewAvailabilityService constructs the service with the regular weekly
// staleness cutoff.
func NewAvailabilityService(db *gorm.DB, c *checker.Checker) *AvailabilityService {
	return &AvailabilityService{
		DB:         db,
		Checker:    c,
		StaleAfter: 7 * 24 * time.Hour,
	}
}

// RunCheck executes one availability run and retains its report. It
// returns ErrRunInProgress when another run (scheduled or manual) is still
// executing; runs are never queued.
func (s *AvailabilityService) RunCheck(ctx context.Context, priority bool, maxEntries int) (checker.Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return checker.Report{}, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	report, err := s.Checker.Run(ctx, priority, maxEntries)
	if err != nil {
		return report, err
	}

	s.mu.Lock()
	s.lastReport = &report
	s.lastRunAt = time.Now().UTC()
	s.mu.Unlock()
	return report, nil
}

// Running reports whether a run is currently executing.
func (s *AvailabilityService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastReport returns a copy of the most recent completed run report and
// its completion time, or ErrNoReport when no run has completed yet.
func (s *AvailabilityService) LastReport() (checker.Report, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReport == nil {
		return checker.Report{}, time.Time{}, ErrNoReport
	}
	return *s.lastReport, s.lastRunAt, nil
}

// Stats returns the catalog coverage snapshot.
func (s *AvailabilityService) Stats(ctx context.Context) (repo.Stats, error) {
	return repo.AvailabilityStats(ctx, s.DB, time.Now().UTC(), s.StaleAfter)
}

// RecentChecks returns the most recently probed catalog rows for the admin
// activity view.
func (s *AvailabilityService) RecentChecks(ctx context.Context, limit int) ([]domain.Car, error) {
	return repo.RecentChecks(ctx, s.DB, limit)
}
