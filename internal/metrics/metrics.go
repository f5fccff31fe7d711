// Package metrics holds the Prometheus instrumentation of the view-tracking
// pipeline. Both services expose it on GET /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values.
const (
	ResultOK         = "ok"
	ResultError      = "error"
	ResultAsyncError = "async_error"

	OutcomeAcked  = "acked"
	OutcomeNacked = "nacked"
)

var (
	// ViewedPublished counts viewed events handed to the broker.
	ViewedPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flixtube_viewed_published_total",
			Help: "Viewed events published, by result",
		},
		[]string{"result"},
	)

	// HistoryDeliveries counts how the history subscriber settled deliveries.
	HistoryDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flixtube_history_deliveries_total",
			Help: "Viewed deliveries settled by the history subscriber, by outcome",
		},
		[]string{"outcome"},
	)

	HistoryRedeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flixtube_history_redeliveries_total",
			Help: "Deliveries the broker flagged as redelivered",
		},
	)

	HistoryPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flixtube_history_persist_duration_seconds",
			Help:    "Time spent inserting a history record",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
	)

	// SubscriberState is the numeric connection state of the history subscriber
	// (0 = disconnected ... 5 = consuming).
	SubscriberState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flixtube_subscriber_state",
			Help: "Connection state of the history subscriber (5 = consuming)",
		},
	)

	// CircuitBreakerState: 0=closed, 1=half-open, 2=open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flixtube_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	HistoryExports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flixtube_history_exports_total",
			Help: "History export writes, by result",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
