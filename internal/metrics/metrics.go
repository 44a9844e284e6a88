// Package metrics defines the Prometheus instruments for the service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhooksReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kybgate_webhooks_received_total",
			Help: "Total number of webhook deliveries received",
		},
	)

	WebhooksRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kybgate_webhooks_rejected_total",
			Help: "Total number of webhook deliveries rejected",
		},
		[]string{"reason"},
	)

	EventsIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kybgate_events_ingested_total",
			Help: "Total number of events inserted into the store",
		},
	)

	EventsDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kybgate_events_duplicate_total",
			Help: "Total number of redelivered events ignored as duplicates",
		},
	)

	SignalsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kybgate_handshake_signals_written_total",
			Help: "Total number of handshake signals written by the callback route",
		},
		[]string{"type"},
	)

	SignalsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kybgate_handshake_signals_consumed_total",
			Help: "Total number of handshake signals consumed by a listener",
		},
		[]string{"type"},
	)

	SignalsStaleTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kybgate_handshake_signals_stale_total",
			Help: "Total number of handshake signals discarded as stale",
		},
	)

	StatusPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kybgate_status_poll_duration_seconds",
			Help:    "Duration of provider status polls",
			Buckets: prometheus.DefBuckets,
		},
	)

	StatusPollFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kybgate_status_poll_failures_total",
			Help: "Total number of failed provider status polls",
		},
	)
)

// Register registers all instruments with the default registry.
// Call once at process start.
func Register() {
	prometheus.MustRegister(
		WebhooksReceivedTotal,
		WebhooksRejectedTotal,
		EventsIngestedTotal,
		EventsDuplicateTotal,
		SignalsWrittenTotal,
		SignalsConsumedTotal,
		SignalsStaleTotal,
		StatusPollDuration,
		StatusPollFailuresTotal,
	)
}
