package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 持久化引擎指标：熔断器、离线队列、同步错误
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	BreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Number of times the circuit breaker opened",
		},
		[]string{"name"},
	)

	OfflineQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "offline_queue_depth",
			Help: "Number of pending actions waiting for replay",
		},
	)

	SyncErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_errors_total",
			Help: "Number of actions that exhausted their retries",
		},
	)
)

func InitEngineMetrics() {
	prometheus.MustRegister(BreakerState)
	prometheus.MustRegister(BreakerTrips)
	prometheus.MustRegister(OfflineQueueDepth)
	prometheus.MustRegister(SyncErrorsTotal)
}
