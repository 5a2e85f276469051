package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierflow_webhooks_received_total",
		Help: "Total webhook deliveries accepted past signature verification, labelled by event type.",
	}, []string{"event_type"})

	SignatureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tierflow_signature_failures_total",
		Help: "Total webhook deliveries rejected for a missing or invalid signature.",
	})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierflow_events_processed_total",
		Help: "Total events fully processed, labelled by event type and outcome.",
	}, []string{"event_type", "outcome"})

	WaterfallsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierflow_waterfalls_detected_total",
		Help: "Total waterfall transitions detected, labelled by the tier that gained access.",
	}, []string{"tier"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierflow_notifications_sent_total",
		Help: "Total notification delivery attempts, labelled by message kind and status.",
	}, []string{"kind", "status"})

	ResolutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tierflow_resolution_failures_total",
		Help: "Total events whose tier could not be resolved by any strategy, labelled by event type.",
	}, []string{"event_type"})

	EventProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tierflow_event_processing_duration_ms",
		Help:    "End-to-end webhook event processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})
)
