package events

import (
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/alfredjeanlab/flixtube/internal/metrics"
)

// BreakerConfig tunes the circuit breaker guarding publishes. While it is
// open, Publish fails immediately so playback never waits on a dead broker.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	OpenTimeout      time.Duration // time spent open before probing again
	HalfOpenRequests uint32        // probes allowed while half-open
}

// DefaultBreakerConfig returns the publisher defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "viewed-publisher",
		FailureThreshold: 5,
		OpenTimeout:      10 * time.Second,
		HalfOpenRequests: 1,
	}
}

func newBreaker(cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn("publisher circuit breaker changed state", "name", name, "from", from.String(), "to", to.String())
		},
	})
}
