package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// tasksStarted tracks transform attempts admitted by the scheduler, by mode.
	tasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paginator_tasks_started_total",
			Help: "Total number of transform attempts admitted by the scheduler",
		},
		[]string{"mode"},
	)

	// tasksSettled tracks settlements by outcome ("success", "failure", "internal").
	tasksSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paginator_tasks_settled_total",
			Help: "Total number of settled transform attempts by outcome",
		},
		[]string{"outcome"},
	)

	// inFlight tracks tasks currently running across all schedulers.
	inFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paginator_in_flight_tasks",
			Help: "Number of transform attempts currently in flight",
		},
	)

	// taskDuration observes the wall time of a single transform attempt.
	taskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paginator_task_duration_seconds",
			Help:    "Duration of transform attempts in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	// reorderBuffered tracks results held back by ordering reassemblers.
	reorderBuffered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paginator_reorder_buffered_results",
			Help: "Number of out-of-order results waiting in reassembly buffers",
		},
	)

	// retriesTotal tracks manual retries by result ("attempt", "success", "failure").
	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paginator_retries_total",
			Help: "Total number of envelope retries by result",
		},
		[]string{"result"},
	)

	// retryBackoffSeconds observes backoff waits applied by RetryWithBackoff.
	retryBackoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paginator_retry_backoff_seconds",
			Help:    "Backoff duration between envelope retries",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	// retryExhausted counts envelopes that still failed after all attempts.
	retryExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paginator_retry_exhausted_total",
			Help: "Total number of envelopes that exhausted their retry attempts",
		},
	)
)
