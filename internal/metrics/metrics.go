// Package metrics declares the Prometheus instrumentation for the
// broadcaster core and its supporting services.
//
// Naming convention: namespace_subsystem_name
//   - namespace: convene (application-level grouping)
//   - subsystem: transport, room, circuit_breaker, ratelimit, redis (feature-level grouping)
//   - name: specific metric (connections_active, messages_total, etc.)
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks the current number of connected clients.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "convene",
		Subsystem: "transport",
		Name:      "connections_active",
		Help:      "Current number of active client connections",
	})

	// ActiveRooms tracks the current number of rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "convene",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks the number of members in each room.
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "convene",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room_id"})

	// MessagesTotal tracks inbound client messages by type and outcome.
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convene",
		Subsystem: "transport",
		Name:      "messages_total",
		Help:      "Total client messages processed",
	}, []string{"message_type", "status"})

	// DispatchDuration tracks the time spent inside a reducer dispatch.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convene",
		Subsystem: "room",
		Name:      "dispatch_duration_seconds",
		Help:      "Time spent dispatching an action through a room's reducer",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"status"})

	// CircuitBreakerState tracks the current state of the rate-limit
	// store's circuit breaker. 0: Closed, 1: Open, 2: Half-Open.
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "convene",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by the circuit breaker.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convene",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convene",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against a rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convene",
		Subsystem: "ratelimit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})

	// RedisOperationsTotal tracks Redis operations issued by the
	// rate limiter's distributed store.
	RedisOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "convene",
		Subsystem: "redis",
		Name:      "operations_total",
		Help:      "Total number of Redis operations",
	}, []string{"operation", "status"})

	// RedisOperationDuration tracks the duration of Redis operations.
	RedisOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "convene",
		Subsystem: "redis",
		Name:      "operation_duration_seconds",
		Help:      "Duration of Redis operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

// IncConnection records a new client connection.
func IncConnection() {
	ActiveConnections.Inc()
}

// DecConnection records a client disconnection.
func DecConnection() {
	ActiveConnections.Dec()
}
