// Package metrics provides Prometheus metrics for vitalwatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "vitalwatch"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Ingest metrics
var (
	// SamplesReceived counts samples read from a source.
	SamplesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_received_total",
			Help:      "Total samples received by source",
		},
		[]string{"source"},
	)

	// SamplesProcessed counts samples by processing outcome.
	SamplesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_processed_total",
			Help:      "Total samples processed by outcome",
		},
		[]string{"outcome"},
	)

	// SamplesRejected counts payloads that could not be decoded.
	SamplesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "samples_rejected_total",
			Help:      "Total payloads rejected by source",
		},
		[]string{"source"},
	)

	// ProcessDuration tracks end-to-end sample processing latency.
	ProcessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "process_duration_seconds",
			Help:      "Sample processing latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// QueueDepth tracks samples waiting in worker shards.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "queue_depth",
			Help:      "Samples queued for processing",
		},
	)
)

// Alerting metrics
var (
	// Evaluations counts engine evaluations by severity.
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "evaluations_total",
			Help:      "Total rule engine evaluations by severity",
		},
		[]string{"severity"},
	)

	// Decisions counts alert decisions by kind.
	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "decisions_total",
			Help:      "Total alert decisions by kind",
		},
		[]string{"kind"},
	)

	// AlertsSuppressed counts alerts dropped by cooldown.
	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "alerts_suppressed_total",
			Help:      "Total alerts suppressed by cooldown",
		},
	)
)

// Lifecycle metrics
var (
	// AlertsFired counts alerts persisted by kind.
	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "alerts_fired_total",
			Help:      "Total alerts persisted by kind",
		},
		[]string{"kind"},
	)

	// AlertsAcknowledged counts successful acknowledgments.
	AlertsAcknowledged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "alerts_acknowledged_total",
			Help:      "Total alerts acknowledged",
		},
	)

	// AlertNotifyFailures counts persisted alerts whose notification failed.
	AlertNotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "notify_failures_total",
			Help:      "Total persisted alerts whose notification failed",
		},
	)

	// RecordsExpired counts records removed by retention.
	RecordsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "records_expired_total",
			Help:      "Total records removed by retention",
		},
		[]string{"table"},
	)
)

// Notification metrics
var (
	// NotificationsSent counts notifications by notifier and status.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Total notifications sent by notifier and status",
		},
		[]string{"notifier", "status"},
	)

	// NotificationsRateLimited counts notifications dropped by rate limiting.
	NotificationsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "rate_limited_total",
			Help:      "Total notifications dropped by rate limiting",
		},
	)
)

// Storage metrics
var (
	// StorageQueryDuration tracks database operation latency.
	StorageQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Database operation latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)
