// Package metrics provides the centralized Prometheus registry reference
// for the ingestion pipeline. All metrics are defined in their respective
// packages (bgg, ingest, pacer) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/bgg):
//   - bgg_requests_total{status} (Counter): Thing requests by HTTP status
//   - bgg_request_duration_seconds (Histogram): Thing request duration
//   - bgg_errors_total{class} (Counter): Errors by class (client, server, queued, rate_limit, network, decode)
//
// Retry Metrics (pkg/bgg):
//   - bgg_retries_total{error_class} (Counter): Retry attempts by error class
//   - bgg_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - bgg_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/bgg):
//   - bgg_cache_hits_total (Counter): Thing-response cache hits
//   - bgg_cache_misses_total (Counter): Thing-response cache misses
//   - bgg_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/pacer):
//   - bgg_pacer_waits_total (Counter): Times the pacer idled before the next request
//   - bgg_pacer_wait_seconds (Histogram): Idle duration imposed by the pacer
//
// Ingestion Metrics (pkg/ingest):
//   - bgg_ingest_batches_processed_total (Counter): Batches fetched, normalized and written
//   - bgg_ingest_batch_duration_seconds (Histogram): Wall-clock duration of successful batches
//   - bgg_ingest_fetch_failures_total (Counter): Failed fetch attempts (each is retried)
//   - bgg_ingest_items_normalized_total (Counter): Raw items normalized into records
//   - bgg_ingest_sink_errors_total (Counter): Record-sink store failures
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(bgg_cache_hits_total[5m]) /
//   (rate(bgg_cache_hits_total[5m]) + rate(bgg_cache_misses_total[5m]))
//
//   # Fetch Failure Rate
//   rate(bgg_ingest_fetch_failures_total[5m])
//
//   # P95 Batch Latency
//   histogram_quantile(0.95, rate(bgg_ingest_batch_duration_seconds_bucket[5m]))
