// Package metrics provides Prometheus metrics for the sync engine:
// run outcomes, synced record counts, outbound HTTP traffic, and retry
// behavior. All metrics are registered automatically via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts completed sync runs by mode (full, incremental) and
	// status (success, error).
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersync",
		Name:      "sync_runs_total",
		Help:      "Total sync runs by mode and status",
	}, []string{"mode", "status"})

	// RecordsSynced counts ledger entries written by a sync run, labeled by
	// invoice direction (issued, received).
	RecordsSynced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersync",
		Name:      "records_synced_total",
		Help:      "Total remote records merged into the ledger by direction",
	}, []string{"direction"})

	// HTTPRequests counts outbound FlexiBee API requests by resource and
	// outcome status class (2xx, 4xx, 5xx, error).
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersync",
		Name:      "http_requests_total",
		Help:      "Total outbound API requests by resource and status class",
	}, []string{"resource", "status"})

	// RetryAttempts counts retried attempts by error type.
	RetryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledgersync",
		Name:      "retry_attempts_total",
		Help:      "Total retried request attempts by error type",
	}, []string{"error_type"})

	// RequestLatency tracks outbound request latency per resource.
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledgersync",
		Name:      "http_request_duration_seconds",
		Help:      "Outbound API request latency by resource",
		Buckets:   prometheus.DefBuckets,
	}, []string{"resource"})
)
