package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TelemetryMessages counts telemetry messages consumed from the bus
	TelemetryMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_telemetry_messages_total",
			Help: "Total number of telemetry messages received",
		},
		[]string{"result"},
	)

	// CycleLatency measures one full evaluation cycle per measurement
	CycleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerpulse_monitor_cycle_latency_seconds",
			Help:    "Evaluation cycle latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.025, 0.05},
		},
		[]string{"stage"},
	)

	// HealthScore exposes the latest composite health score per converter
	HealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "powerpulse_health_score",
			Help: "Latest composite health score (0-100)",
		},
		[]string{"converter_id"},
	)

	// Anomalies counts detected anomalies
	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_anomalies_total",
			Help: "Total number of detected anomalies",
		},
		[]string{"quantity", "kind"},
	)

	// Alerts counts alert state transitions
	Alerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_alerts_total",
			Help: "Total number of alert state transitions",
		},
		[]string{"kind", "state"},
	)

	// Notifications counts dispatched and suppressed notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_notifications_total",
			Help: "Total number of alert notifications by outcome",
		},
		[]string{"channel", "outcome"},
	)

	// Recommendations counts generated recommendations
	Recommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_recommendations_total",
			Help: "Total number of generated recommendations",
		},
		[]string{"objective"},
	)

	// StorageLatency measures database write latency
	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerpulse_storage_latency_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
		[]string{"operation"},
	)

	// APILatency measures API request latency
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerpulse_api_request_latency_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"endpoint", "method", "status"},
	)

	// APIRequests counts API requests
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	// CacheLookups counts sweep cache lookups by result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpulse_api_cache_lookups_total",
			Help: "Total number of sweep cache lookups",
		},
		[]string{"result"},
	)
)
