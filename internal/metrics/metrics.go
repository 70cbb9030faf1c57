package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BackendRequestsTotal counts backend calls by operation and outcome.
	BackendRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Total backend calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// BackendRequestDuration tracks backend call latency.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portal",
		Subsystem: "backend",
		Name:      "request_duration_seconds",
		Help:      "Backend call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ForcedLogoutsTotal counts sessions cleared by a 401.
	ForcedLogoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal",
		Name:      "forced_logouts_total",
		Help:      "Sessions cleared because the backend rejected the credential.",
	})

	// CheckoutTransitionsTotal counts checkout state entries.
	CheckoutTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "checkout",
		Name:      "transitions_total",
		Help:      "Checkout state transitions by target state.",
	}, []string{"state"})

	// PaymentPollResultsTotal counts individual payment poll results.
	PaymentPollResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "checkout",
		Name:      "payment_poll_results_total",
		Help:      "Payment poll results (pending/completed/failed/not_found/error).",
	}, []string{"result"})

	// GuardDecisionsTotal counts route guard decisions.
	GuardDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal",
		Subsystem: "guard",
		Name:      "decisions_total",
		Help:      "Route guard decisions by route class and action.",
	}, []string{"class", "action"})
)

// Outcome labels a backend call result for BackendRequestsTotal.
func Outcome(status int) string {
	switch {
	case status == 0:
		return "network_error"
	case status >= 200 && status < 300:
		return "success"
	case status == 401:
		return "unauthorized"
	case status >= 400 && status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}
