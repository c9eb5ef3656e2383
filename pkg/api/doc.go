/*
Package api serves labdeck over HTTP: the realtime websocket, the REST API
for plugins, instances and alerts, and the operational endpoints.

# Routes

	GET    /ws                          realtime websocket
	GET    /health /ready /live         process health
	GET    /metrics                     Prometheus
	GET    /api/v1/realtime/stats       {"users":N,"connections":M}
	GET    /api/v1/plugins              list own plugins
	POST   /api/v1/plugins              install {"type","name"}
	POST   /api/v1/plugins/{id}/enable
	POST   /api/v1/plugins/{id}/disable
	DELETE /api/v1/plugins/{id}
	GET    /api/v1/instances            list own instances (no passwords)
	POST   /api/v1/instances            add {"type","name","url","username","password"}
	DELETE /api/v1/instances/{id}
	GET    /api/v1/alerts
	POST   /api/v1/alerts               set {"instanceId","metric","percent"}
	DELETE /api/v1/alerts/{id}

# Identity

labdeck sits behind a session layer that knows who the user is. The user
id reaches the server in one of three places, in order of precedence:

 1. the auth query parameter, a JSON object such as {"userId":42}
 2. the userId query parameter
 3. the X-User-Id header

The websocket handshake and every /api/v1 route except stats run the same
check. A missing or non-integer id is answered with 401 and
{"error":"authentication required"}; for the websocket this happens before
the upgrade, so nothing is registered with the hub.

# Websocket framing

Every message is a JSON frame in both directions:

	{"event": "torrent:progress", "data": {...}}
	{"event": "subscribe:torrents", "data": 7}
	{"event": "ping"}

Each connection has a bounded send queue drained by a writer goroutine.
Send never blocks the hub: a full queue or a closed connection is reported
as a push failure for that connection only. The server pings every 54s and
drops connections that stay silent for 60s; any read failure disconnects
the connection from the hub. Unknown or malformed control messages are
logged and ignored.
*/
package api
