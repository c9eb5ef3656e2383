/*
Package poller contains labdeck's event producers: the Glances metrics
poller and the qBittorrent torrent sampler.

Both pollers follow the same round structure:

	ticker ──► list instances of one type ──► errgroup (≤8 at once)
	                                              │
	                                              ▼
	                            per instance: sample ──► Emit(owner, event)
	                                              │
	                                  on failure  └──► Emit(owner, error)

Rounds run immediately on Start and then every Config.Interval. Each
instance request is bounded by Config.Timeout. Clients are cached per
instance and rebuilt when the URL or the credentials change.

# Metrics

GlancesClient reads /api/4/cpu, core, mem, fs and network concurrently
and folds them into one server:metrics payload. Disk usage is the sum
over all mounted filesystems; network counters are summed over every
interface except loopback. Glances does not report packet counts, so those
fields stay zero unless the agent provides them.

After each successful sample the instance's alert thresholds are checked.
A THRESHOLD_EXCEEDED error event fires when a metric reaches its threshold
and not again until the metric has dropped back below it.

# Torrents

QBittorrentClient logs into the WebUI and keeps the SID cookie, logging
in again when a request is refused. Each torrent becomes one
torrent:progress event: progress is scaled to 0-100, the 8640000 "infinite"
ETA becomes -1, and qBittorrent's states collapse onto downloading,
seeding, paused, stopped and error.

Upstream failures are reported to the owner as METRICS_POLL_FAILED or
TORRENT_POLL_FAILED error events and counted in labdeck_poll_failures_total.
*/
package poller
