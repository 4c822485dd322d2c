// Package metrics exposes Prometheus counters for cache efficiency and upstream traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache-aside lookups by namespace and outcome (hit, miss, stale, corrupt).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teampulse_cache_lookups_total",
			Help: "Cache-aside lookups by namespace and outcome",
		},
		[]string{"namespace", "outcome"},
	)

	// CacheInvalidations counts explicit cache deletions.
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teampulse_cache_invalidations_total",
			Help: "Explicit cache deletions by namespace",
		},
		[]string{"namespace"},
	)

	// UpstreamRequests counts HTTP calls to third-party APIs by upstream and result.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teampulse_upstream_requests_total",
			Help: "HTTP requests to upstream APIs",
		},
		[]string{"upstream", "result"},
	)

	// UpstreamLatency observes HTTP round trip time per upstream.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teampulse_upstream_request_duration_seconds",
			Help:    "Upstream request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"upstream"},
	)

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "teampulse_circuit_breaker_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open)",
		},
		[]string{"upstream"},
	)

	// ReportRuns counts orchestrator runs by final state.
	ReportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teampulse_report_runs_total",
			Help: "Report runs by terminal state",
		},
		[]string{"state"},
	)

	// DomainFailures counts per-domain isolation events (tickets, recognition).
	DomainFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teampulse_domain_failures_total",
			Help: "Secondary domain failures isolated from a report run",
		},
		[]string{"domain"},
	)
)
