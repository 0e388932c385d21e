// Package checker implements the batch availability run: select catalog
// candidates, probe each listing URL concurrently under a global
// concurrency bound, and persist outcomes one sub-batch at a time.
//
// Processing model:
//   - candidates are partitioned into fixed-size sub-batches which run
//     strictly sequentially; within a sub-batch every probe runs
//     concurrently, gated by a weighted semaphore shared across the whole
//     run;
//   - each sub-batch is persisted (one transaction) before the next one is
//     probed, so a crash loses at most one sub-batch of results;
//   - a persistence failure for one sub-batch is logged and skipped, never
//     aborting the run;
//   - a panicking probe is converted to an Unknown outcome for its entry.
package checker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/tbourn/go-cars-backend/internal/domain"
	"github.com/tbourn/go-cars-backend/internal/probe"
	"github.com/tbourn/go-cars-backend/internal/repo"
)

// Prober issues one existence check. Implemented by *probe.Client.
type Prober interface {
	Check(ctx context.Context, carID, url string) probe.Outcome
}

// Catalog is the persistence contract the checker needs: candidate
// selection and the per-sub-batch outcome writer. The production
// implementation proxies the repo package free functions.
type Catalog interface {
	ListCandidates(ctx context.Context, db *gorm.DB, priority bool, now time.Time, limit int) ([]domain.Car, error)
	ApplyOutcomes(ctx context.Context, db *gorm.DB, outcomes []probe.Outcome, now time.Time, deleteAfter int) (repo.ApplyResult, error)
}

// Report summarizes one checker run. It is transient: returned to the
// caller and logged, never persisted.
type Report struct {
	Priority         bool          `json:"priority"`
	CheckedCount     int           `json:"checked_count"`
	AvailableCount   int           `json:"available_count"`
	UnavailableCount int           `json:"unavailable_count"`
	FlaggedCount     int           `json:"flagged_count"`
	ErrorCount       int           `json:"error_count"`
	Duration         time.Duration `json:"duration"`
	StartedAt        time.Time     `json:"started_at"`
}

// Checker orchestrates batch availability runs. All fields are set once at
// construction; Run may be invoked repeatedly and is safe for sequential
// reuse (the scheduler and the admin trigger share one instance, each run
// creating its own semaphore).
type Checker struct {
	DB      *gorm.DB
	Prober  Prober
	Catalog Catalog

	// BatchSize is the sub-batch size; candidates are probed and persisted
	// in chunks of this many rows.
	BatchSize int
	// MaxConcurrent caps simultaneous in-flight probes across the run.
	MaxConcurrent int
	// MaxEntries is the default per-run candidate cap, used when the
	// caller passes maxEntries <= 0.
	MaxEntries int
	// DeleteAfterFailures is the consecutive-failure count at which an
	// unreachable row is deleted. 1 keeps the delete-on-first-failure
	// policy.
	DeleteAfterFailures int

	// jitter pauses briefly before each sub-batch; tests replace it.
	jitter func(ctx context.Context) error
}

// New constructs a Checker with defaults applied to zero fields.
func New(db *gorm.DB, prober Prober, catalog Catalog) *Checker {
	return &Checker{
		DB:                  db,
		Prober:              prober,
		Catalog:             catalog,
		BatchSize:           50,
		MaxConcurrent:       10,
		MaxEntries:          1000,
		DeleteAfterFailures: 1,
		jitter:              batchJitter,
	}
}

// batchJitter sleeps 100-500ms so consecutive sub-batches do not slam the
// source sites back to back.
func batchJitter(ctx context.Context) error {
	d := 100*time.Millisecond + time.Duration(rand.Int63n(int64(400*time.Millisecond)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes one availability run in the given mode and returns its
// Report. maxEntries <= 0 falls back to the configured default cap.
//
// Run only returns an error when candidate selection itself fails; probe
// and persistence failures are folded into the report counters.
func (c *Checker) Run(ctx context.Context, priority bool, maxEntries int) (Report, error) {
	start := time.Now()
	report := Report{Priority: priority, StartedAt: start.UTC()}

	if maxEntries <= 0 {
		maxEntries = c.MaxEntries
	}
	batchSize := c.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	log.Info().Bool("priority", priority).Int("max_entries", maxEntries).
		Msg("starting availability check")

	cars, err := c.Catalog.ListCandidates(ctx, c.DB, priority, time.Now().UTC(), maxEntries)
	if err != nil {
		return report, fmt.Errorf("select candidates: %w", err)
	}
	if len(cars) == 0 {
		log.Info().Msg("no entries need availability checking")
		report.Duration = time.Since(start)
		return report, nil
	}
	log.Info().Int("candidates", len(cars)).Msg("entries selected for checking")

	// One semaphore for the entire run: the concurrency bound is global,
	// not per sub-batch.
	sem := semaphore.NewWeighted(int64(c.MaxConcurrent))

	totalBatches := (len(cars) + batchSize - 1) / batchSize
	for n := 0; n < totalBatches; n++ {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("availability run cancelled")
			break
		}

		lo := n * batchSize
		hi := min(lo+batchSize, len(cars))
		batch := cars[lo:hi]

		if err := c.jitter(ctx); err != nil {
			break
		}

		outcomes := c.probeBatch(ctx, sem, batch)
		if ctx.Err() != nil {
			// A cancelled probe reports Unknown; persisting that would count
			// a shutdown as a failed check. Drop the sub-batch instead.
			log.Warn().Int("batch", n+1).Msg("run cancelled, discarding in-flight sub-batch")
			break
		}
		res, err := c.Catalog.ApplyOutcomes(ctx, c.DB, outcomes, time.Now().UTC(), c.DeleteAfterFailures)
		if err != nil {
			// This sub-batch's outcomes are lost; carry on with the next.
			report.ErrorCount++
			log.Error().Err(err).Int("batch", n+1).Int("of", totalBatches).
				Msg("persisting sub-batch failed, skipping")
			continue
		}

		report.CheckedCount += len(outcomes)
		report.AvailableCount += res.Refreshed
		report.UnavailableCount += res.Deleted
		report.FlaggedCount += res.Flagged
		entriesDeleted.Add(float64(res.Deleted))

		log.Info().
			Int("batch", n+1).Int("of", totalBatches).
			Float64("progress_pct", float64(n+1)/float64(totalBatches)*100).
			Int("checked", report.CheckedCount).
			Int("unavailable", report.UnavailableCount).
			Msg("sub-batch persisted")
	}

	report.Duration = time.Since(start)
	log.Info().
		Int("checked", report.CheckedCount).
		Int("unavailable", report.UnavailableCount).
		Int("errors", report.ErrorCount).
		Dur("duration", report.Duration).
		Msg("availability check completed")
	return report, nil
}

// probeBatch checks all entries of one sub-batch concurrently and returns
// one outcome per entry. Probe panics are recovered into Unknown outcomes
// so a single bad URL cannot take down the run.
func (c *Checker) probeBatch(ctx context.Context, sem *semaphore.Weighted, batch []domain.Car) []probe.Outcome {
	outcomes := make([]probe.Outcome, len(batch))
	var wg sync.WaitGroup

	dispatched := len(batch)
	for i, car := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Run cancelled mid sub-batch; the remaining entries stay
			// untouched for a later run.
			dispatched = i
			break
		}

		wg.Add(1)
		probesInflight.Inc()
		go func(i int, car domain.Car) {
			defer wg.Done()
			defer probesInflight.Dec()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = probe.Outcome{
						CarID:  car.ID,
						Status: probe.StatusUnknown,
						Reason: fmt.Sprintf("probe panic: %v", r),
					}
					log.Error().Str("car_id", car.ID).Interface("panic", r).Msg("probe panicked")
				}
				probesTotal.WithLabelValues(outcomes[i].Status.String()).Inc()
			}()
			outcomes[i] = c.Prober.Check(ctx, car.ID, car.ListingURL)
		}(i, car)
	}

	wg.Wait()
	return outcomes[:dispatched]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
