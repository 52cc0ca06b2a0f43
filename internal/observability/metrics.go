package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GatheringsPosted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "food_donation", Name: "gatherings_posted_total", Help: "Total gatherings posted by donors"})
	ClaimsTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "food_donation", Name: "claims_total", Help: "Total successful claims"})
	ClaimConflicts   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "food_donation", Name: "claim_conflicts_total", Help: "Claim attempts rejected because the gathering was already claimed"})
	GeoFallbacks     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "food_donation", Name: "geo_fallback_total", Help: "Nearby lookups served by the in-memory index after a Redis error"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "food_donation", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "food_donation",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
