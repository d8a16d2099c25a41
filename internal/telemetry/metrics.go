package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	CacheHit    = "hit"
	CacheMiss   = "miss"
	CacheBypass = "bypass"
)

// Resolution outcomes.
const (
	OutcomeResolved     = "resolved"
	OutcomeAnonymous    = "anonymous"
	OutcomeSessionError = "session_error"
)

var (
	identityCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mappa_iam_identity_cache_requests_total",
			Help: "Identity cache lookups by result (hit, miss, bypass)",
		},
		[]string{"result"},
	)

	identityResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mappa_iam_identity_resolve_duration_seconds",
			Help:    "Duration of identity resolution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	lookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mappa_iam_lookup_failures_total",
			Help: "Store lookups that failed or timed out, by resolution step",
		},
		[]string{"step"},
	)

	cacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mappa_iam_identity_cache_invalidations_total",
			Help: "Full identity cache invalidations",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mappa_iam_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mappa_iam_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordCacheLookup counts an identity cache lookup.
func RecordCacheLookup(result string) {
	identityCacheRequests.WithLabelValues(result).Inc()
}

// RecordResolution observes how long a GetIdentity call took.
func RecordResolution(outcome string, d time.Duration) {
	identityResolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordLookupFailure counts a failed store lookup.
func RecordLookupFailure(step string) {
	lookupFailures.WithLabelValues(step).Inc()
}

// RecordCacheInvalidation counts a full cache clear.
func RecordCacheInvalidation() {
	cacheInvalidations.Inc()
}

// RecordHTTPRequest counts an HTTP request and observes its duration.
func RecordHTTPRequest(method, route, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
