// Package metrics provides the Prometheus registry and HTTP handler for the
// paginator. Metrics are defined in their respective packages (pagination,
// fetch, redisseq) to keep them next to the code that updates them.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the paginator.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer exposes the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving Gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Engine Metrics (pkg/pagination):
//   - paginator_tasks_started_total{mode} (Counter): Transform attempts admitted by mode (chunks, infinite)
//   - paginator_tasks_settled_total{outcome} (Counter): Settlements by outcome (success, failure, internal)
//   - paginator_in_flight_tasks (Gauge): Transform attempts currently running
//   - paginator_task_duration_seconds (Histogram): Duration of a single transform attempt
//   - paginator_reorder_buffered_results (Gauge): Results waiting in reassembly buffers
//
// Retry Metrics (pkg/pagination):
//   - paginator_retries_total{result} (Counter): Envelope retries (attempt, success, failure)
//   - paginator_retry_backoff_seconds (Histogram): Backoff applied by RetryWithBackoff
//   - paginator_retry_exhausted_total (Counter): Envelopes that exhausted their attempts
//
// Page Request Metrics (pkg/fetch):
//   - fetch_page_requests_total{status} (Counter): Page requests by HTTP status code (or "network_error")
//   - fetch_page_request_duration_seconds (Histogram): Page request duration
//
// List Source Metrics (pkg/redisseq):
//   - redisseq_pops_total (Counter): Items popped from Redis lists
//   - redisseq_errors_total{operation} (Counter): Errors by operation (pop, decode, push)
//
// Example Prometheus Queries:
//
//   # Item Failure Rate
//   rate(paginator_tasks_settled_total{outcome="failure"}[5m]) /
//   sum(rate(paginator_tasks_settled_total[5m]))
//
//   # Internal Violations (should stay at zero)
//   increase(paginator_tasks_settled_total{outcome="internal"}[1h]) > 0
//
//   # P95 Transform Latency
//   histogram_quantile(0.95, rate(paginator_task_duration_seconds_bucket[5m]))
//
//   # Head-of-line Blocking in Ordered Iteration
//   max_over_time(paginator_reorder_buffered_results[5m])
//
//   # Retry Success Rate
//   rate(paginator_retries_total{result="success"}[5m]) /
//   rate(paginator_retries_total{result="attempt"}[5m])
