package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// Metrics implements reconcile.Metrics using Prometheus.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	eventDuration      *prometheus.HistogramVec
	roleActionsTotal   *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation for the
// reconciliation pipeline.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "events_total",
			Help:      "Total number of webhook events processed, by terminal outcome.",
		}, []string{"event_type", "outcome"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "event_duration_seconds",
			Help:      "Duration of event processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),

		roleActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "role_actions_total",
			Help:      "Total number of role mutations dispatched.",
		}, []string{"kind", "status"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "notifications_total",
			Help:      "Total number of notification delivery attempts.",
		}, []string{"status"}),
	}
}

func (m *Metrics) RecordEvent(eventType, outcome string) {
	m.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) RecordEventDuration(eventType string, duration time.Duration) {
	m.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordRoleAction(kind, status string) {
	m.roleActionsTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordNotification(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}

// DefaultMetrics returns a Metrics implementation using the default
// Prometheus registerer.
func DefaultMetrics(namespace string) reconcile.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
