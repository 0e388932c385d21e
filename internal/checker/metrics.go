package checker

import "github.com/prometheus/client_golang/prometheus"

var (
	// probesTotal counts finished probes by outcome ("available", "gone",
	// "unknown").
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_probes_total",
			Help: "Total number of listing probes by outcome.",
		},
		[]string{"outcome"},
	)

	// probesInflight gauges concurrently running probes; it can never
	// exceed the configured concurrency bound.
	probesInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "availability_probes_inflight",
			Help: "Current number of in-flight listing probes.",
		},
	)

	// entriesDeleted counts catalog rows removed after a confirmed
	// unavailable outcome.
	entriesDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "availability_entries_deleted_total",
			Help: "Total catalog entries deleted as unavailable.",
		},
	)

	// runsTotal counts scheduler and manual runs by mode and result.
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "availability_runs_total",
			Help: "Total availability check runs by mode and result.",
		},
		[]string{"mode", "result"},
	)

	// runDuration observes wall-clock run duration. Runs scale with
	// catalog size, hence the wide buckets.
	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "availability_run_duration_seconds",
			Help:    "Duration of availability check runs in seconds.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		},
	)
)

func init() {
	prometheus.MustRegister(probesTotal, probesInflight, entriesDeleted, runsTotal, runDuration)
}

// modeLabel maps the priority flag to the metrics label value.
func modeLabel(priority bool) string {
	if priority {
		return "priority"
	}
	return "regular"
}
