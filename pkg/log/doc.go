/*
Package log provides structured logging for labdeck using zerolog.

A single global zerolog.Logger is configured once at startup with Init and
shared by every package. Components derive child loggers that carry
identifying fields:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("hub")
	logger.Debug().Str("conn_id", id).Msg("connection admitted")

Until Init is called the global logger discards everything, which keeps
package tests quiet.

# Levels

  - debug: admissions, disconnects, subscription changes, skipped deliveries
  - info: server lifecycle, poller start/stop
  - warn: rejected admissions, failed pushes, upstream poll failures
  - error: storage failures and server errors

# Output

Console output (the default) is meant for a terminal; JSON output is meant
for log shippers:

	{"level":"info","component":"api","addr":":8080","time":"2026-10-15T10:30:00Z","message":"HTTP server listening"}
*/
package log
