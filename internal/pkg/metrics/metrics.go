// Package metrics provides Prometheus metrics for the Knative topology server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kntopo"

var (
	// HTTPRequestTotal counts requests by method, path, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path"},
	)

	// TopologyBuildDurationSeconds covers snapshot collection plus graph build.
	TopologyBuildDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "topology_build_duration_seconds",
			Help:      "Knative topology build duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	// TopologyGraphNodes is the node count of the last build per domain.
	TopologyGraphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_graph_nodes",
			Help:      "Number of nodes in the last built topology, by domain.",
		},
		[]string{"domain"},
	)

	// TopologyGraphEdges is the edge count of the last build per domain.
	TopologyGraphEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "topology_graph_edges",
			Help:      "Number of edges in the last built topology, by domain.",
		},
		[]string{"domain"},
	)

	// CollectorListErrorsTotal counts failed resource lists by role.
	CollectorListErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_list_errors_total",
			Help:      "Total number of failed resource list calls, by role.",
		},
		[]string{"role"},
	)

	// WebSocketConnectionsActive is the current number of websocket clients.
	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)

	// TopologyCacheHitsTotal counts cache hits.
	TopologyCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_cache_hits_total",
			Help:      "Total number of topology cache hits.",
		},
	)

	// TopologyCacheMissesTotal counts cache misses.
	TopologyCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "topology_cache_misses_total",
			Help:      "Total number of topology cache misses.",
		},
	)

	// CircuitBreakerState is 0 closed, 1 open, 2 half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Cluster API circuit breaker state (0 closed, 1 open, 2 half-open).",
		},
		[]string{"context"},
	)

	// CircuitBreakerTransitionsTotal counts state changes.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions.",
		},
		[]string{"context", "from", "to"},
	)

	// CircuitBreakerFailuresTotal counts failures counted against the breaker.
	CircuitBreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_failures_total",
			Help:      "Total number of cluster API failures recorded by the circuit breaker.",
		},
		[]string{"context"},
	)
)
