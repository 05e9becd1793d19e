// Package metrics provides the centralized Prometheus metrics registry.
// All metrics are defined in their respective packages (pager, client, cache,
// ratelimit) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by this module.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Pager Metrics (pkg/pager):
//   - pager_pages_fetched_total{outcome} (Counter): Page fetches by outcome (success, error)
//   - pager_page_fetch_duration_seconds (Histogram): Duration of the fetch-and-parse cycle
//   - pager_refreshes_total (Counter): Coordinator refreshes
//   - pager_retries_total (Counter): Caller-initiated retries after a failed fetch
//   - pager_stale_results_discarded_total (Counter): Late results discarded after a superseding refresh
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pagekit_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - pagekit_rate_limit_blocks_total (Counter): Requests blocked due to critical budget
//   - pagekit_rate_limit_throttles_total (Counter): Requests throttled due to low budget
//
// Cache Metrics (pkg/cache):
//   - pagecache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - pagecache_misses_total (Counter): Cache misses
//   - pagecache_size_bytes{layer="redis"} (Gauge): Bytes written to the cache
//   - pagecache_304_responses_total (Counter): 304 Not Modified responses served from cache
//   - pagecache_conditional_requests_total (Counter): Conditional requests sent
//   - pagecache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - pagekit_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - pagekit_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - pagekit_errors_total{kind} (Counter): Errors by classified kind
//
// Retry Metrics (pkg/client):
//   - pagekit_retries_total{kind} (Counter): Retry attempts by error kind
//   - pagekit_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - pagekit_retry_exhausted_total{kind} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(pagecache_hits_total[5m])) /
//   (sum(rate(pagecache_hits_total[5m])) + sum(rate(pagecache_misses_total[5m])))
//
//   # Rate Limit Budget
//   pagekit_rate_limit_remaining < 20
//
//   # Page Fetch Error Rate
//   rate(pager_pages_fetched_total{outcome="error"}[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(pagekit_request_duration_seconds_bucket[5m]))
//
//   # 304 Response Rate
//   rate(pagecache_304_responses_total[5m]) / rate(pagekit_requests_total[5m])
