package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vncsmyrnk/pollstream/internal/core/domain"
)

// Hub Metrics
var (
	// HubConnectedSubscribers tracks currently registered stream subscribers
	HubConnectedSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_subscribers",
			Help: "Number of stream subscribers currently registered with the hub",
		},
	)

	// HubBroadcastsTotal tracks broadcast calls by event kind
	HubBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Total broadcast calls by event kind",
		},
		[]string{"kind"},
	)

	// HubWriteFailuresTotal tracks subscriber writes that failed and caused deregistration
	HubWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_write_failures_total",
			Help: "Subscriber writes that failed and caused deregistration",
		},
	)

	// HubKeepAlivesTotal tracks keep-alive frames written
	HubKeepAlivesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_keepalives_total",
			Help: "Keep-alive frames written to subscribers",
		},
	)

	HubBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hub_broadcast_duration_seconds",
			Help:    "Time spent writing one event to every subscriber",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
)

// Mutation Metrics
var (
	// MutationsTotal tracks poll mutations by operation and outcome
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_mutations_total",
			Help: "Poll mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
)

// Store Metrics
var (
	// StoreBreakerState tracks the store circuit breaker (0=closed, 1=half-open, 2=open)
	StoreBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_circuit_breaker_state",
			Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// StoreBreakerStateChanges tracks breaker transitions by new state
	StoreBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_circuit_breaker_state_changes_total",
			Help: "Store circuit breaker transitions by new state",
		},
		[]string{"state"},
	)
)

// Relay Metrics
var (
	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Events moved through the cross-instance relay by direction and status",
		},
		[]string{"direction", "status"},
	)
)

// RecordMutation counts one mutation attempt under an outcome derived from err.
func RecordMutation(operation string, err error) {
	MutationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInvalidOption):
		return "invalid_option"
	case errors.Is(err, domain.ErrPollNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
