package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Simulation-wide counters and gauges. They describe the running simulator
// process, not virtual time; virtual-time results live in the trace.
var (
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_jobs_submitted_total",
		Help: "Number of compound jobs submitted to compute services",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_jobs_completed_total",
		Help: "Number of compound jobs that completed successfully",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_jobs_failed_total",
		Help: "Number of compound jobs that failed or were killed",
	})

	ActionsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_actions_dispatched_total",
		Help: "Number of actions handed to executors",
	})

	ActionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_actions_completed_total",
		Help: "Number of actions that completed",
	})

	ActionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_actions_failed_total",
		Help: "Number of actions that failed",
	})

	ActionsKilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meridian_actions_killed_total",
		Help: "Number of actions that were killed",
	})

	SchedulingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meridian_scheduling_pass_duration_seconds",
		Help:    "Wall-clock duration of compute service scheduling passes",
		Buckets: prometheus.ExponentialBuckets(1e-6, 10, 8),
	})

	VirtualTime = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meridian_virtual_time_seconds",
		Help: "Current virtual time of the simulation",
	})
)

// Timer measures wall-clock durations for histograms.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into a histogram.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(time.Since(t.start).Seconds())
}
