// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "imdb_watchlist"

var (
	// CacheOperationsTotal tracks watchlist cache lookups and writes.
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: redis, memory
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// StaleServesTotal counts responses served from stale data after a failed refresh.
	StaleServesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_serves_total",
			Help:      "Total number of stale watchlists served after a failed refresh",
		},
	)

	// StorageFallbackTotal tracks storage backend routing changes.
	// Labels:
	//   - transition: primary_down, primary_up
	StorageFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_fallback_transitions_total",
			Help:      "Total number of primary storage health transitions",
		},
		[]string{"transition"},
	)

	// FetchRequestsTotal tracks upstream watchlist fetches.
	// Labels:
	//   - result: success, not_found, network_error
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Total number of upstream watchlist fetches",
		},
		[]string{"result"},
	)

	// FetchDurationSeconds observes upstream fetch latency.
	FetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of upstream watchlist fetches",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12, 20},
		},
	)

	// SyncJobsTotal tracks job queue outcomes.
	// Labels:
	//   - status: enqueued, deduplicated, completed, retried, failed
	SyncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_jobs_total",
			Help:      "Total number of background sync jobs by outcome",
		},
		[]string{"status"},
	)

	// RateLimitRejectedTotal counts requests rejected by the client rate limiter.
	RateLimitRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejected_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// HTTPRequestsTotal tracks served requests.
	// Labels:
	//   - route: chi route pattern, e.g. /{userID}/catalog/{type}/{catalogID}.json
	//   - status: HTTP status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDurationSeconds observes request latency per route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeRedis  = "redis"
	CacheTypeMemory = "memory"
)

// Storage transition constants.
const (
	TransitionPrimaryDown = "primary_down"
	TransitionPrimaryUp   = "primary_up"
)

// Fetch result constants.
const (
	FetchSuccess      = "success"
	FetchNotFound     = "not_found"
	FetchNetworkError = "network_error"
)

// Sync job status constants.
const (
	JobEnqueued     = "enqueued"
	JobDeduplicated = "deduplicated"
	JobCompleted    = "completed"
	JobRetried      = "retried"
	JobFailed       = "failed"
	JobCancelled    = "cancelled"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
