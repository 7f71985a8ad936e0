// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

/*
Package metrics provides Prometheus instrumentation for the ingestion
engine, exposed at /metrics by internal/ops.

# Available metrics

Circuit breaker:
  - connector_circuit_breaker_state (gauge, labels: connector)
  - connector_circuit_breaker_transitions_total (counter, labels: connector, from_state, to_state)
  - connector_requests_total (counter, labels: connector, result)

Quota and rate limiting:
  - connector_quota_consumed (gauge, labels: connector)
  - connector_quota_limit (gauge, labels: connector)
  - connector_rate_limit_remaining (gauge, labels: connector)

Scheduler:
  - scheduler_task_duration_seconds (histogram, labels: queue, task)
  - scheduler_task_errors_total (counter, labels: queue, task)
  - scheduler_task_last_success_timestamp (gauge, labels: queue, task)

Catalog:
  - catalog_upserts_total (counter, labels: table, result)
  - catalog_live_streams (gauge, labels: platform)

# Usage

	metrics.RecordConnectorRequest("helix", "success")
	metrics.RecordTask("discovery", "helix_search", elapsed, err)
	metrics.RecordCatalogUpsert("stream", "updated")
*/
package metrics
