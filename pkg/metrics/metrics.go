package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Realtime hub metrics
	RealtimeUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labdeck_realtime_users",
			Help: "Number of distinct users with at least one live connection",
		},
	)

	RealtimeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labdeck_realtime_connections",
			Help: "Number of live realtime connections across all users",
		},
	)

	AdmissionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "labdeck_admissions_rejected_total",
			Help: "Total number of connection attempts rejected at the handshake",
		},
	)

	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_events_emitted_total",
			Help: "Total number of events emitted by producers, by event name",
		},
		[]string{"event"},
	)

	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_events_delivered_total",
			Help: "Total number of event pushes handed to a transport, by event name",
		},
		[]string{"event"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_events_dropped_total",
			Help: "Total number of events not delivered, by event name and reason",
		},
		[]string{"event", "reason"},
	)

	ControlMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_control_messages_total",
			Help: "Total number of client control messages, by message name",
		},
		[]string{"message"},
	)

	// Inventory metrics
	PluginsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labdeck_plugins_total",
			Help: "Total number of plugins by type and enabled state",
		},
		[]string{"type", "enabled"},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labdeck_instances_total",
			Help: "Total number of service instances by type",
		},
		[]string{"type"},
	)

	AlertThresholdsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "labdeck_alert_thresholds_total",
			Help: "Total number of configured alert thresholds",
		},
	)

	// Poller metrics
	PollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labdeck_poll_duration_seconds",
			Help:    "Time taken to poll one upstream instance in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	PollFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_poll_failures_total",
			Help: "Total number of failed upstream polls by source",
		},
		[]string{"source"},
	)

	InstanceReachable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "labdeck_instance_reachable",
			Help: "Whether an instance passed its last reachability check (1 = reachable)",
		},
		[]string{"instance"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labdeck_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labdeck_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(RealtimeUsers)
	prometheus.MustRegister(RealtimeConnections)
	prometheus.MustRegister(AdmissionsRejected)
	prometheus.MustRegister(EventsEmitted)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(EventsDropped)
	prometheus.MustRegister(ControlMessages)
	prometheus.MustRegister(PluginsTotal)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(AlertThresholdsTotal)
	prometheus.MustRegister(PollDuration)
	prometheus.MustRegister(PollFailures)
	prometheus.MustRegister(InstanceReachable)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
