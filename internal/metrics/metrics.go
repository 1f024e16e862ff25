package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the booking core counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	bookingsCreated      *prometheus.CounterVec
	bookingsRejected     *prometheus.CounterVec
	bookingsCancelled    *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	deferredOverlaps     prometheus.Counter
	notificationsDropped *prometheus.CounterVec
	conflictsFound       *prometheus.CounterVec
}

func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bookings_created_total",
				Help:      "Bookings persisted, by creation path and initial status.",
			},
			[]string{"path", "status"},
		),
		bookingsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_rejections_total",
				Help:      "Booking requests refused, by error code.",
			},
			[]string{"code"},
		),
		bookingsCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bookings_cancelled_total",
				Help:      "Bookings cancelled, by caller role.",
			},
			[]string{"role"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_webhook_events_total",
				Help:      "Payment webhook deliveries, by event kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		deferredOverlaps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deferred_booking_overlaps_total",
				Help:      "Paid deferred bookings persisted on top of an occupied slot.",
			},
		),
		notificationsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_dropped_total",
				Help:      "Notifications not delivered, by reason.",
			},
			[]string{"reason"},
		),
		conflictsFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conflicts_found_total",
				Help:      "Scheduling conflicts reported by audit runs, by type.",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.bookingsCreated,
		m.bookingsRejected,
		m.bookingsCancelled,
		m.webhookEvents,
		m.deferredOverlaps,
		m.notificationsDropped,
		m.conflictsFound,
	)
	return m
}

func (m *Metrics) IncBookingCreated(path, status string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(path, status).Inc()
}

func (m *Metrics) IncBookingRejected(code string) {
	if m == nil {
		return
	}
	m.bookingsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncBookingCancelled(role string) {
	if m == nil {
		return
	}
	m.bookingsCancelled.WithLabelValues(role).Inc()
}

func (m *Metrics) IncWebhookEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncDeferredOverlap() {
	if m == nil {
		return
	}
	m.deferredOverlaps.Inc()
}

func (m *Metrics) IncNotificationDropped(reason string) {
	if m == nil {
		return
	}
	m.notificationsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddConflicts(conflictType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.conflictsFound.WithLabelValues(conflictType).Add(float64(n))
}
