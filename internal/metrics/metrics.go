package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by channel.",
		},
		[]string{"channel"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	bookingStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "booking_status_changed_total",
			Help:      "Count of manager status changes over bookings.",
		},
		[]string{"status"},
	)

	flowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "flow_transition_total",
			Help:      "Booking flow transitions by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	slotFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "slot_fetch_total",
			Help:      "Slot availability fetches by result (ok, stale, error).",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "events_published_total",
			Help:      "Domain events forwarded to external sinks by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingCancelled, bookingStatus,
			flowTransitions, slotFetches, httpRequests, eventsPublished,
		)
	})
}

func IncBookingCreated(channel string) {
	bookingCreated.WithLabelValues(channel).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncBookingStatus(status string) {
	bookingStatus.WithLabelValues(status).Inc()
}

func IncFlowTransition(event, outcome string) {
	flowTransitions.WithLabelValues(event, outcome).Inc()
}

func IncSlotFetch(result string) {
	slotFetches.WithLabelValues(result).Inc()
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncEventPublished(sink, result string) {
	eventsPublished.WithLabelValues(sink, result).Inc()
}
