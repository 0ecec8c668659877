package reminders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "reminders_sent_total",
			Help:      "Reminders processed by final status and kind.",
		},
		[]string{"status", "kind"},
	)

	remindersQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "studiotblack",
			Name:      "reminders_queue_size",
			Help:      "Current number of pending reminders.",
		},
	)

	reminderSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "studiotblack",
			Name:      "reminder_send_duration_seconds",
			Help:      "Time to deliver a reminder, retries included.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 30},
		},
	)

	remindersCleanedUp = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "reminders_cleaned_up_total",
			Help:      "Reminders deleted after the retention period.",
		},
	)

	reminderRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "studiotblack",
			Name:      "reminder_retries_total",
			Help:      "Delivery retry attempts.",
		},
	)
)
