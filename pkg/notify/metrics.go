// Package notify Prometheus metrics for the notification system.
package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	// Counter metrics
	notificationsShown = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_notifications_shown_total",
			Help: "Total number of notifications displayed",
		},
		[]string{"level"},
	)

	notificationsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimoire_notifications_closed_total",
			Help: "Total number of notifications removed, by reason",
		},
		[]string{"reason"},
	)

	notificationActions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grimoire_notification_actions_total",
			Help: "Total number of notification action invocations",
		},
	)

	// Gauge metrics
	notificationsVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimoire_notifications_visible",
			Help: "Number of currently visible notifications",
		},
	)
)

func init() {
	prometheus.MustRegister(
		notificationsShown,
		notificationsClosed,
		notificationActions,
		notificationsVisible,
	)
}
