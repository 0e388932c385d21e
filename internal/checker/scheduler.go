// Scheduler: the long-running background loop that triggers availability
// runs at two independent cadences without an external cron. A regular
// broad sweep covers every stale-or-unchecked entry; a more frequent
// priority sweep fast-tracks entries that were never checked or recently
// failed.
//
// The loop wakes at a fixed interval, fires whichever cadence has elapsed
// (tracked by last-run timestamps), and never terminates on error: a
// failed run is logged and retried on the cadence's next tick. Shutdown is
// context-based; cancelling the context passed to Start stops the loop.
package checker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunFunc executes one availability run. It matches
// (*services.AvailabilityService).RunCheck so the scheduler and the admin
// trigger share one code path (and one last-report slot).
type RunFunc func(ctx context.Context, priority bool, maxEntries int) (Report, error)

// SchedulerStatus is the operator-facing snapshot of the loop state.
type SchedulerStatus struct {
	Running         bool       `json:"running"`
	TotalRuns       int        `json:"total_runs"`
	SuccessfulRuns  int        `json:"successful_runs"`
	FailedRuns      int        `json:"failed_runs"`
	LastRegularRun  *time.Time `json:"last_regular_run,omitempty"`
	LastPriorityRun *time.Time `json:"last_priority_run,omitempty"`
}

// Scheduler drives periodic availability runs. Construct with
// NewScheduler, then call Start once from main; the loop runs until the
// context is cancelled.
type Scheduler struct {
	run RunFunc

	// RegularInterval is the broad-sweep cadence (default 24h).
	RegularInterval time.Duration
	// PriorityInterval is the fast re-check cadence (default 6h).
	PriorityInterval time.Duration
	// WakeInterval is how often the loop checks whether a cadence has
	// elapsed (default 1h).
	WakeInterval time.Duration
	// WarmupDelay postpones the first wake after process start so the
	// checker does not compete with application bootstrap (default 5m).
	WarmupDelay time.Duration
	// MaxEntries caps each triggered run.
	MaxEntries int

	mu           sync.Mutex
	running      bool
	lastRegular  time.Time
	lastPriority time.Time
	totalRuns    int
	okRuns       int
	failedRuns   int
}

// NewScheduler builds a Scheduler around run with default cadences.
func NewScheduler(run RunFunc) *Scheduler {
	return &Scheduler{
		run:              run,
		RegularInterval:  24 * time.Hour,
		PriorityInterval: 6 * time.Hour,
		WakeInterval:     time.Hour,
		WarmupDelay:      5 * time.Minute,
		MaxEntries:       1000,
	}
}

// Start blocks running the scheduler loop until ctx is cancelled. Call it
// in its own goroutine:
//
//	go sched.Start(ctx)
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Info().
		Dur("warmup", s.WarmupDelay).
		Dur("regular_interval", s.RegularInterval).
		Dur("priority_interval", s.PriorityInterval).
		Msg("availability scheduler started")

	if err := sleepCtx(ctx, s.WarmupDelay); err != nil {
		log.Info().Msg("availability scheduler stopped during warm-up")
		return
	}

	ticker := time.NewTicker(s.WakeInterval)
	defer ticker.Stop()

	// First wake immediately after warm-up so a fresh deployment does not
	// wait a full interval before its first sweep.
	s.wake(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("availability scheduler stopped")
			return
		case <-ticker.C:
			s.wake(ctx)
		}
	}
}

// wake fires each cadence whose interval has elapsed. The regular sweep is
// evaluated first; both may fire on the same wake after a long suspension.
func (s *Scheduler) wake(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	regularDue := s.lastRegular.IsZero() || now.Sub(s.lastRegular) >= s.RegularInterval
	priorityDue := !s.lastPriority.IsZero() && now.Sub(s.lastPriority) >= s.PriorityInterval
	if s.lastPriority.IsZero() {
		// The priority cadence starts counting from the first wake; the
		// initial regular sweep already covers never-checked entries.
		s.lastPriority = now
	}
	s.mu.Unlock()

	if regularDue {
		s.fire(ctx, false, now)
	}
	if priorityDue {
		s.fire(ctx, true, now)
	}
}

// fire executes one run, records its result, and contains any failure so
// the loop survives to the next tick.
func (s *Scheduler) fire(ctx context.Context, priority bool, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bool("priority", priority).
				Msg("availability run panicked")
			s.record(priority, now, false)
		}
	}()

	report, err := s.run(ctx, priority, s.MaxEntries)
	runDuration.Observe(report.Duration.Seconds())
	if err != nil {
		log.Error().Err(err).Bool("priority", priority).Msg("scheduled availability run failed")
		runsTotal.WithLabelValues(modeLabel(priority), "error").Inc()
		s.record(priority, now, false)
		return
	}

	runsTotal.WithLabelValues(modeLabel(priority), "ok").Inc()
	s.record(priority, now, true)
}

// record updates the cadence timestamp and run counters.
func (s *Scheduler) record(priority bool, now time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRuns++
	if ok {
		s.okRuns++
	} else {
		s.failedRuns++
	}
	if priority {
		s.lastPriority = now
	} else {
		s.lastRegular = now
	}
}

// Status returns a snapshot of the loop state for the admin surface.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerStatus{
		Running:        s.running,
		TotalRuns:      s.totalRuns,
		SuccessfulRuns: s.okRuns,
		FailedRuns:     s.failedRuns,
	}
	if !s.lastRegular.IsZero() {
		t := s.lastRegular
		st.LastRegularRun = &t
	}
	if !s.lastPriority.IsZero() {
		t := s.lastPriority
		st.LastPriorityRun = &t
	}
	return st
}

// sleepCtx sleeps for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
