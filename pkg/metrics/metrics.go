// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BackendRequestDuration tracks round trips to the booking backend.
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_backend_request_duration_seconds",
			Help:    "Booking backend request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"mode", "status"},
	)

	// TurnsTotal counts conversational turns by mode and outcome.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total conversational turns",
		},
		[]string{"mode", "outcome"},
	)

	// BusyRejectionsTotal counts inputs refused because a turn was in flight.
	BusyRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_busy_rejections_total",
			Help: "Inputs rejected while a request was outstanding",
		},
	)

	// PersistenceFailuresTotal counts session store errors.
	PersistenceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_persistence_failures_total",
			Help: "Session store read/write failures",
		},
		[]string{"op"},
	)

	// SessionsActive tracks controllers held by the registry.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_sessions_active",
			Help: "Number of live conversation controllers",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordBackend records one booking backend round trip.
func RecordBackend(mode, status string, duration float64) {
	BackendRequestDuration.WithLabelValues(mode, status).Observe(duration)
}

// RecordTurn records the outcome of one turn.
func RecordTurn(mode, outcome string) {
	TurnsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordPersistenceFailure records a failed store operation.
func RecordPersistenceFailure(op string) {
	PersistenceFailuresTotal.WithLabelValues(op).Inc()
}
