/*
Package events provides labdeck's realtime fan-out hub.

Backend producers (the metrics poller, the torrent sampler, the plugin
service, the reachability monitor) push live updates to the browser
connections of one user. A connection only receives topic-scoped events for
the keys it has subscribed to; connection-status and error events reach all
of the user's connections.

# Architecture

	┌──────────────────────── HUB ─────────────────────────────┐
	│                                                           │
	│  Handshake ──► Authenticate ──► Admit                     │
	│                 (gate)           │                        │
	│                                  ▼                        │
	│  ┌──────────────────┐    ┌──────────────────────┐        │
	│  │    Registry      │    │   Connection table   │        │
	│  │ userID → {conn}  │    │ connID → *Conn       │        │
	│  └────────┬─────────┘    │   subs: plugins      │        │
	│           │              │         torrents     │        │
	│           │              │         metrics      │        │
	│           │              └──────────┬───────────┘        │
	│           └────────── Emit ─────────┘                     │
	│                        │                                  │
	│                        ▼                                  │
	│              Transport.Send(event, payload)               │
	└───────────────────────────────────────────────────────────┘

# Connection Lifecycle

	admitted ──► active ──► disconnected

Admit authenticates the handshake, registers the connection and sends it a
connection:status acknowledgement. Disconnect removes the connection and
deletes the user's registry entry with its last connection. A connection's
subscription sets die with it.

# Routing

	Event             wire name           namespace  topic key
	ConnectionStatus  connection:status   -          -
	PluginStatus      plugin:status       plugins    PluginID
	TorrentProgress   torrent:progress    torrents   InstanceID
	ServerMetrics     server:metrics      metrics    InstanceID
	ErrorNotice       error               -          -

Emit never fails. A user without connections, a connection that detached
concurrently, and a transport whose Send fails are all absorbed; a failure on
one connection does not stop delivery to the others.

# Control Messages

Clients send frames of the form {"event": name, "data": arg}:

	ping
	subscribe:plugins    / unsubscribe:plugins    (pluginId)
	subscribe:torrents   / unsubscribe:torrents   (instanceId)
	subscribe:metrics    / unsubscribe:metrics    (instanceId)

Subscribing and unsubscribing are idempotent. Topic keys are not validated
against stored resources; zero and negative keys are accepted.

# Concurrency

The hub is safe for concurrent use. One RWMutex guards the registry, the
connection table and the subscription sets. Emit holds the read lock while
pushing, which is why Transport.Send must not block. Events emitted by one
goroutine reach a given connection in emission order.

# Usage

	hub := events.NewHub()
	defer hub.Close()

	conn, err := hub.Admit(events.Handshake{Query: r.URL.Query()}, transport)
	if errors.Is(err, events.ErrUnauthenticated) {
		// refuse the connection
	}

	_ = hub.Subscribe(conn.ID(), events.NamespaceTorrents, 7)

	hub.Emit(42, events.TorrentProgress{InstanceID: 7, TorrentHash: "abc", Progress: 50})
*/
package events
