/*
Package metrics provides Prometheus metrics and health endpoints for labdeck.

All metrics are registered with the default Prometheus registry at package
init and exposed by Handler, which the API server mounts at /metrics.

# Metric Categories

Realtime hub:

	labdeck_realtime_users               distinct users with a live connection
	labdeck_realtime_connections         live connections across all users
	labdeck_admissions_rejected_total    handshakes refused by the auth gate
	labdeck_events_emitted_total         events handed to the hub, by event
	labdeck_events_delivered_total       pushes handed to a transport, by event
	labdeck_events_dropped_total         undelivered events, by event and reason
	labdeck_control_messages_total       client control messages, by message

Inventory (sampled every 15s by Collector):

	labdeck_plugins_total                by type and enabled state
	labdeck_instances_total              by type
	labdeck_alert_thresholds_total

Pollers and reachability:

	labdeck_poll_duration_seconds        per upstream poll, by source
	labdeck_poll_failures_total          by source
	labdeck_instance_reachable           1 when the last probe succeeded

API:

	labdeck_api_requests_total           by method and status
	labdeck_api_request_duration_seconds by method

# Timing Operations

Timer wraps the common observe-on-return pattern:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PollDuration, "glances")

# Health

HealthChecker backs /health, /ready and /live. Components report through
Set; readiness requires every critical component passed to
NewHealthChecker to be registered and healthy. SetCounters adds live
counters (users and connections from the hub) to /health responses.
*/
package metrics
