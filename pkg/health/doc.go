/*
Package health probes the service instances labdeck manages and reports
when one stops answering.

Two probe types implement Checker:

	┌──────────────────────────────┐
	│      Checker interface       │
	│  • Check(ctx) Result         │
	│  • Type() CheckType          │
	└──────┬───────────────┬───────┘
	       ▼               ▼
	┌─────────────┐  ┌─────────────┐
	│ HTTPChecker │  │ TCPChecker  │
	└─────────────┘  └─────────────┘

CheckerFor picks one from the instance URL: tcp://host:port gets a TCP
dial, anything else an HTTP GET that does not follow redirects. For HTTP
probes any status below 500 counts as reachable, because service roots
commonly answer with a login redirect or a 401.

# Status

Status counts consecutive successes and failures. An instance turns
unhealthy after Config.Retries consecutive failures and recovers on the
first success. Update reports whether the verdict flipped, which is what
the monitor reacts to.

# Monitor

Monitor runs a probe round every Config.Interval. A round covers every
instance whose owner has an installed and enabled plugin of the same type.
Probes within a round run concurrently. On a transition the owner receives:

  - plugin:status for each matching plugin, message "unreachable" or
    "reachable"
  - an error event with code INSTANCE_UNREACHABLE when going down

The labdeck_instance_reachable gauge mirrors the current verdict per
instance. Instances that drop out of the inventory are forgotten.

	monitor := health.NewMonitor(store, hub, health.Config{
		Interval: cfg.Poll.HealthInterval,
		Timeout:  cfg.Poll.Timeout,
		Retries:  cfg.Health.Retries,
	})
	monitor.Start(ctx)
	defer monitor.Stop()
*/
package health
