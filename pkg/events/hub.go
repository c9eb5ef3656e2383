package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownConnection is returned when a connection id is not live
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrHubClosed is returned by Admit after Close
	ErrHubClosed = errors.New("hub closed")
)

// Transport pushes named events to one client. Send must not block: the
// hub calls it while holding its lock. Close must be safe to call more
// than once.
type Transport interface {
	Send(event string, payload interface{}) error
	Close() error
}

// Emitter is the producer-facing side of the hub. Pollers, the plugin
// service and the reachability monitor depend on it rather than on *Hub.
type Emitter interface {
	Emit(userID int64, ev Event)
}

var _ Emitter = (*Hub)(nil)

// ConnState is the lifecycle state of a connection
type ConnState int

const (
	StateAdmitted ConnState = iota
	StateActive
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateAdmitted:
		return "admitted"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Conn is one live client session. It is owned by the Hub; callers only
// hold it for its id.
type Conn struct {
	id        string
	userID    int64
	subs      *Subscriptions
	transport Transport
	state     ConnState
	hub       *Hub
}

// ID returns the connection id
func (c *Conn) ID() string { return c.id }

// UserID returns the user the connection was admitted for
func (c *Conn) UserID() int64 { return c.userID }

// State returns the current lifecycle state
func (c *Conn) State() ConnState {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.state
}

// Stats are the introspection counters exposed for health checks
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Hub admits connections, tracks their subscriptions and fans events out
// to them. A single mutex guards the registry, the connection table and
// every subscription set, so once Disconnect returns no emit can reach the
// connection.
type Hub struct {
	mu       sync.RWMutex
	registry *Registry
	conns    map[string]*Conn
	closed   bool

	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		registry: NewRegistry(),
		conns:    make(map[string]*Conn),
		logger:   log.WithComponent("hub"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Admit authenticates a handshake, registers a connection for the user and
// acknowledges it with a connection:status event. On authentication failure
// nothing is registered and the error wraps ErrUnauthenticated.
func (h *Hub) Admit(hs Handshake, t Transport) (*Conn, error) {
	userID, err := Authenticate(hs)
	if err != nil {
		metrics.AdmissionsRejected.Inc()
		h.logger.Warn().Err(err).Msg("admission rejected")
		return nil, err
	}

	c := &Conn{
		id:        h.newID(),
		userID:    userID,
		subs:      NewSubscriptions(),
		transport: t,
		state:     StateAdmitted,
		hub:       h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	h.conns[c.id] = c
	h.registry.Add(userID, c.id)
	h.updateGauges()

	h.acknowledge(c, "")
	c.state = StateActive

	h.logger.Debug().
		Int64("user_id", userID).
		Str("conn_id", c.id).
		Int("user_connections", len(h.registry.users[userID])).
		Msg("connection admitted")

	return c, nil
}

// Disconnect removes a connection and closes its transport. The user's
// registry entry disappears with its last connection. Unknown ids are
// ignored; the return value reports whether the connection was live.
func (h *Hub) Disconnect(connID string) bool {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		h.registry.Remove(c.userID, connID)
		c.state = StateDisconnected
		c.subs = NewSubscriptions()
		h.updateGauges()
	}
	h.mu.Unlock()

	if !ok {
		return false
	}

	if err := c.transport.Close(); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", connID).Msg("transport close failed")
	}
	h.logger.Debug().
		Int64("user_id", c.userID).
		Str("conn_id", connID).
		Msg("connection disconnected")
	return true
}

// Ping re-sends the connection:status acknowledgement to one connection
func (h *Hub) Ping(connID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	h.acknowledge(c, "")
	return nil
}

// Subscribe opts a connection into a topic key. Subscribing twice is a no-op.
func (h *Hub) Subscribe(connID string, ns Namespace, key int64) error {
	return h.mutateSubscription(connID, ns, key, true)
}

// Unsubscribe opts a connection out of a topic key. Removing an absent key
// is a no-op.
func (h *Hub) Unsubscribe(connID string, ns Namespace, key int64) error {
	return h.mutateSubscription(connID, ns, key, false)
}

func (h *Hub) mutateSubscription(connID string, ns Namespace, key int64, add bool) error {
	if !ns.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownControl, ns)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	var changed bool
	if add {
		changed = c.subs.Add(ns, key)
	} else {
		changed = c.subs.Remove(ns, key)
	}

	h.logger.Debug().
		Str("conn_id", connID).
		Str("namespace", ns.String()).
		Int64("key", key).
		Bool("subscribe", add).
		Bool("changed", changed).
		Msg("subscription updated")
	return nil
}

// Subscribed reports whether a live connection holds key in a namespace
func (h *Hub) Subscribed(connID string, ns Namespace, key int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[connID]
	if !ok {
		return false
	}
	return c.subs.Has(ns, key)
}

// HandleControl applies an inbound control message from a connection
func (h *Hub) HandleControl(connID string, msg ControlMessage) error {
	op, ns, key, err := parseControl(msg)
	if err != nil {
		metrics.ControlMessages.WithLabelValues("invalid").Inc()
		return err
	}
	metrics.ControlMessages.WithLabelValues(msg.Event).Inc()

	switch op {
	case opPing:
		return h.Ping(connID)
	case opSubscribe:
		return h.Subscribe(connID, ns, key)
	case opUnsubscribe:
		return h.Unsubscribe(connID, ns, key)
	}
	return fmt.Errorf("%w: %q", ErrUnknownControl, msg.Event)
}

// envelope is a routed event ready for the wire
type envelope struct {
	name    string
	scoped  bool
	ns      Namespace
	key     int64
	payload interface{}
}

// route resolves an event into its wire name, its topic scope and the
// payload to push, stamping a zero timestamp with the current time.
func (h *Hub) route(ev Event) (envelope, bool) {
	now := Timestamp(h.now())
	name := ev.Kind().WireName()

	switch e := ev.(type) {
	case ConnectionStatus:
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		return envelope{name: name, payload: e}, true
	case PluginStatus:
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		return envelope{name: name, scoped: true, ns: NamespacePlugins, key: e.PluginID, payload: e}, true
	case TorrentProgress:
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		return envelope{name: name, scoped: true, ns: NamespaceTorrents, key: e.InstanceID, payload: e}, true
	case ServerMetrics:
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		return envelope{name: name, scoped: true, ns: NamespaceMetrics, key: e.InstanceID, payload: e}, true
	case ErrorNotice:
		if e.Timestamp == 0 {
			e.Timestamp = now
		}
		// The producer keeps its map; transports get a private copy
		if e.Context != nil {
			ctx := make(map[string]interface{}, len(e.Context))
			for k, v := range e.Context {
				ctx[k] = v
			}
			e.Context = ctx
		}
		return envelope{name: name, payload: e}, true
	}
	return envelope{}, false
}

// Emit delivers an event to every connection of userID that should see it.
// Topic-scoped events go only to connections subscribed to the event's key;
// connection-status and error events go to all of the user's connections.
// Emit is best effort: a user with no connections, a connection that
// detached mid-flight, or a failing transport are all absorbed here.
func (h *Hub) Emit(userID int64, ev Event) {
	if ev == nil {
		return
	}
	env, ok := h.route(ev)
	if !ok {
		h.logger.Warn().Str("type", fmt.Sprintf("%T", ev)).Msg("unroutable event type")
		return
	}
	metrics.EventsEmitted.WithLabelValues(env.name).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := h.registry.ConnectionsFor(userID)
	if len(ids) == 0 {
		metrics.EventsDropped.WithLabelValues(env.name, "no_connections").Inc()
		h.logger.Debug().Int64("user_id", userID).Str("event", env.name).Msg("no connections for user")
		return
	}

	for _, id := range ids {
		c, ok := h.conns[id]
		if !ok {
			continue
		}
		if env.scoped && !c.subs.Has(env.ns, env.key) {
			continue
		}
		if err := h.push(c, env.name, env.payload); err != nil {
			metrics.EventsDropped.WithLabelValues(env.name, "send_failed").Inc()
			h.logger.Debug().Err(err).Str("conn_id", id).Str("event", env.name).Msg("push failed")
			continue
		}
		metrics.EventsDelivered.WithLabelValues(env.name).Inc()
	}
}

// push sends over a connection's transport, turning a panicking transport
// into an error so the fan-out loop keeps going. Caller holds h.mu.
func (h *Hub) push(c *Conn, name string, payload interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return c.transport.Send(name, payload)
}

// acknowledge sends connection:status to one connection. Caller holds h.mu.
func (h *Hub) acknowledge(c *Conn, message string) {
	ack := ConnectionStatus{
		Connected: true,
		UserID:    c.userID,
		Timestamp: Timestamp(h.now()),
		Message:   message,
	}
	if err := h.push(c, EventConnectionStatus, ack); err != nil {
		metrics.EventsDropped.WithLabelValues(EventConnectionStatus, "send_failed").Inc()
		h.logger.Debug().Err(err).Str("conn_id", c.id).Msg("acknowledgement failed")
		return
	}
	metrics.EventsDelivered.WithLabelValues(EventConnectionStatus).Inc()
}

// ConnectionsFor returns the live connection ids of a user, sorted
func (h *Hub) ConnectionsFor(userID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.ConnectionsFor(userID)
}

// Stats returns the number of connected users and live connections
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Users:       h.registry.CountUsers(),
		Connections: h.registry.CountConnections(),
	}
}

// Close disconnects every connection and refuses further admissions
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for id, c := range h.conns {
		c.state = StateDisconnected
		conns = append(conns, c)
		delete(h.conns, id)
	}
	h.registry = NewRegistry()
	h.updateGauges()
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.transport.Close()
	}
	h.logger.Info().Int("connections", len(conns)).Msg("hub closed")
}

// updateGauges mirrors the registry counters into Prometheus. Caller holds h.mu.
func (h *Hub) updateGauges() {
	metrics.RealtimeUsers.Set(float64(h.registry.CountUsers()))
	metrics.RealtimeConnections.Set(float64(h.registry.CountConnections()))
}
