// Package metrics provides the centralized Prometheus registry reference for
// the ADP client. All metrics are defined in their owning packages (auth,
// client, cache, pagination) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the ADP client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - adp_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - adp_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - adp_errors_total{status} (Counter): Error responses by status code
//
// Retry Metrics (pkg/client):
//   - adp_retries_total{endpoint} (Counter): Retry attempts by endpoint
//   - adp_retry_backoff_seconds (Histogram): Backoff duration before retries
//   - adp_retry_exhausted_total{endpoint} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - adp_cache_hits_total (Counter): Cache hits
//   - adp_cache_misses_total (Counter): Cache misses
//   - adp_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pagination Metrics (pkg/pagination):
//   - adp_pages_fetched_total{endpoint} (Counter): Pages fetched by endpoint
//   - adp_pagination_duration_seconds{endpoint} (Histogram): Full pagination loop duration
//   - adp_batch_elements_total{outcome} (Counter): Batch elements by outcome (success, error)
//   - adp_batch_duration_seconds{template} (Histogram): Batch duration by endpoint template
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(adp_cache_hits_total[5m])) /
//   (sum(rate(adp_cache_hits_total[5m])) + sum(rate(adp_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(adp_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(adp_request_duration_seconds_bucket[5m]))
//
//   # Batch Failure Share
//   rate(adp_batch_elements_total{outcome="error"}[5m]) /
//   rate(adp_batch_elements_total[5m])
