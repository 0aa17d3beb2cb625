// Package errhandler Prometheus metrics for handled errors.
package errhandler

import "github.com/prometheus/client_golang/prometheus"

var (
	// Counter metrics
	errorsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_errors_handled_total",
			Help: "Total number of errors processed by the handler",
		},
		[]string{"severity", "kind"},
	)

	errorsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_errors_suppressed_total",
			Help: "Total number of errors recorded but not visibly surfaced",
		},
		[]string{"reason"},
	)

	modalsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_error_modals_suppressed_total",
			Help: "Total number of modal requests dropped because a modal was already active",
		},
	)

	boundaryTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_error_boundary_trips_total",
			Help: "Total number of error boundary activations",
		},
	)
)

func init() {
	prometheus.MustRegister(errorsHandled, errorsSuppressed, modalsSuppressed, boundaryTrips)
}
