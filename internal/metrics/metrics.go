// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ingestion engine: per-connector circuit
// breaker state/transitions, quota consumption, task duration, and catalog
// write throughput.

var (
	// CircuitBreakerState reports the current ACTIVE/PAUSED/ERROR/DISABLED
	// state of a connector's breaker as a float (see connector.State).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connector_circuit_breaker_state",
			Help: "Connector circuit breaker state (0=active, 1=paused, 2=error, 3=disabled)",
		},
		[]string{"connector"},
	)

	// CircuitBreakerTransitions counts every state change a connector's
	// breaker makes.
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"connector", "from_state", "to_state"},
	)

	// ConnectorRequests counts every upstream call a connector makes,
	// labeled by outcome.
	ConnectorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_requests_total",
			Help: "Total upstream requests made by a connector",
		},
		[]string{"connector", "result"}, // result: success, failure, rejected
	)

	// QuotaConsumed tracks cumulative quota units consumed since the last
	// reset, for quota-metered connectors (Helix).
	QuotaConsumed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connector_quota_consumed",
			Help: "Quota units consumed since the last daily reset",
		},
		[]string{"connector"},
	)

	// QuotaLimit exposes the configured daily quota ceiling for the same
	// connector, so consumed/limit ratios are computable in PromQL.
	QuotaLimit = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connector_quota_limit",
			Help: "Configured daily quota ceiling",
		},
		[]string{"connector"},
	)

	// RateLimitRemaining tracks the most recently observed
	// Ratelimit-Remaining header value for rate-budgeted connectors
	// (Torrent).
	RateLimitRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "connector_rate_limit_remaining",
			Help: "Most recently observed rate limit remaining count",
		},
		[]string{"connector"},
	)

	// TaskDuration records wall-clock time spent in a scheduler task run.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_task_duration_seconds",
			Help:    "Scheduler task execution duration",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"queue", "task"}, // queue: discovery, liveness, maintenance
	)

	// TaskErrors counts scheduler task failures.
	TaskErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_task_errors_total",
			Help: "Total scheduler task failures",
		},
		[]string{"queue", "task"},
	)

	// TaskLastSuccess records the Unix timestamp of the last successful
	// run of a task, so staleness is a simple `time() - gauge` query.
	TaskLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_task_last_success_timestamp",
			Help: "Unix timestamp of the task's last successful run",
		},
		[]string{"queue", "task"},
	)

	// CatalogUpserts counts catalog writes by table and outcome.
	CatalogUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_upserts_total",
			Help: "Total catalog upserts",
		},
		[]string{"table", "result"}, // table: channel, stream; result: inserted, updated, error
	)

	// CatalogLiveStreams reports the current count of LIVE streams per
	// platform, refreshed by the liveness task.
	CatalogLiveStreams = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_live_streams",
			Help: "Current number of streams in LIVE status",
		},
		[]string{"platform"},
	)
)

// RecordConnectorRequest records one upstream call outcome for a connector.
func RecordConnectorRequest(connector, result string) {
	ConnectorRequests.WithLabelValues(connector, result).Inc()
}

// RecordCircuitBreakerTransition records a connector breaker state change
// and updates the current-state gauge to match.
func RecordCircuitBreakerTransition(connector, from, to string, stateValue float64) {
	CircuitBreakerTransitions.WithLabelValues(connector, from, to).Inc()
	CircuitBreakerState.WithLabelValues(connector).Set(stateValue)
}

// RecordTask records the duration and outcome of one scheduler task run.
func RecordTask(queue, task string, duration time.Duration, err error) {
	TaskDuration.WithLabelValues(queue, task).Observe(duration.Seconds())
	if err != nil {
		TaskErrors.WithLabelValues(queue, task).Inc()
		return
	}
	TaskLastSuccess.WithLabelValues(queue, task).SetToCurrentTime()
}

// RecordCatalogUpsert records the outcome of one catalog write.
func RecordCatalogUpsert(table, result string) {
	CatalogUpserts.WithLabelValues(table, result).Inc()
}
