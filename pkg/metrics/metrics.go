// Package metrics provides the centralized Prometheus metrics registry.
// All metrics are defined in their respective packages (api, download,
// cache, ratelimit, runner) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available
// metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry. All metrics are
// automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/api):
//   - civitai_requests_total{procedure, status} (Counter): Requests by procedure and HTTP status
//   - civitai_request_duration_seconds{procedure} (Histogram): Request duration by procedure
//   - civitai_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - civitai_retries_total{error_class} (Counter): Retry attempts by error class
//   - civitai_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//   - civitai_pages_fetched_total{procedure} (Counter): Metadata pages fetched
//   - civitai_items_fetched_total{procedure} (Counter): Items accepted after filtering
//
// Pacing Metrics (pkg/ratelimit):
//   - civitai_throttle_waits_total (Counter): Politeness delays taken before requests
//   - civitai_throttle_wait_seconds (Histogram): Politeness delay duration
//   - civitai_backoff_waits_total{cause} (Counter): Backoff waits by cause
//   - civitai_backoff_seconds{cause} (Histogram): Backoff duration by cause
//
// Download Metrics (pkg/download):
//   - civitai_downloads_total{result} (Counter): Download outcomes (success, already_present, failed)
//   - civitai_download_bytes_total (Counter): Bytes written to local storage
//   - civitai_download_attempts_total{cause} (Counter): Attempt outcomes by cause
//   - civitai_reconcile_actions_total{action} (Counter): Duplicate files renamed or deleted
//   - civitai_inflight_downloads (Gauge): Downloads currently in flight
//
// Cache Metrics (pkg/cache):
//   - civitai_resolver_cache_hits_total (Counter): Resolver cache hits
//   - civitai_resolver_cache_misses_total (Counter): Resolver cache misses
//   - civitai_resolver_cache_errors_total{operation} (Counter): Cache operation errors
//
// Run Metrics (pkg/runner):
//   - civitai_units_total{kind, outcome} (Counter): Processed units by kind and outcome
//   - civitai_cleanup_deleted_total (Counter): Local files deleted by date-bounded cleanup
//
// Example Prometheus Queries:
//
//   # Download Success Rate
//   sum(rate(civitai_downloads_total{result="success"}[5m])) /
//   sum(rate(civitai_downloads_total[5m]))
//
//   # Rate Limit Pressure
//   rate(civitai_backoff_waits_total{cause="rate_limit"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(civitai_request_duration_seconds_bucket[5m]))
//
//   # Resolver Cache Hit Rate
//   sum(rate(civitai_resolver_cache_hits_total[5m])) /
//   (sum(rate(civitai_resolver_cache_hits_total[5m])) + sum(rate(civitai_resolver_cache_misses_total[5m])))
