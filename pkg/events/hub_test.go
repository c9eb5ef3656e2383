package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	name    string
	payload interface{}
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentEvent
	closed  int
	sendErr error
	panics  bool
}

func (f *fakeTransport) Send(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("socket gone")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentEvent{name: event, payload: payload})
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTransport) events(name string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestHub() *Hub {
	h := NewHub()
	var n int
	h.newID = func() string {
		n++
		return fmt.Sprintf("C%d", n)
	}
	h.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return h
}

func userHandshake(id string) Handshake {
	return Handshake{Query: url.Values{"userId": {id}}}
}

func admit(t *testing.T, h *Hub, userID string) (*Conn, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	c, err := h.Admit(userHandshake(userID), tr)
	require.NoError(t, err)
	return c, tr
}

func TestAdmitAcknowledgesNewConnectionOnly(t *testing.T) {
	h := newTestHub()

	c1, tr1 := admit(t, h, "42")
	_, tr2 := admit(t, h, "42")

	assert.Equal(t, int64(42), c1.UserID())
	assert.Equal(t, StateActive, c1.State())
	assert.Equal(t, []string{"C1", "C2"}, h.ConnectionsFor(42))

	acks := tr1.events(EventConnectionStatus)
	require.Len(t, acks, 1, "first connection must not see the second one's acknowledgement")
	ack := acks[0].payload.(ConnectionStatus)
	assert.True(t, ack.Connected)
	assert.Equal(t, int64(42), ack.UserID)
	assert.Equal(t, int64(1700000000000), ack.Timestamp)

	assert.Len(t, tr2.events(EventConnectionStatus), 1)
}

func TestAdmitRejectsMissingIdentity(t *testing.T) {
	h := newTestHub()
	tr := &fakeTransport{}

	c, err := h.Admit(Handshake{}, tr)

	assert.Nil(t, c)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, Stats{}, h.Stats())
	assert.Empty(t, tr.sent, "nothing may be pushed to a rejected connection")
}

func TestUnknownUserEmitIsNoOp(t *testing.T) {
	h := newTestHub()

	assert.Empty(t, h.ConnectionsFor(1234))
	assert.NotPanics(t, func() {
		h.Emit(1234, ErrorNotice{Code: "X", Message: "nobody home"})
		h.Emit(1234, PluginStatus{PluginID: 1})
	})
}

func TestTorrentScenario(t *testing.T) {
	h := newTestHub()

	c1, tr := admit(t, h, "42")
	assert.Equal(t, []string{c1.ID()}, h.ConnectionsFor(42))

	require.NoError(t, h.HandleControl(c1.ID(), ControlMessage{Event: ControlSubscribeTorrents, Data: json.RawMessage(`7`)}))

	h.Emit(42, TorrentProgress{InstanceID: 7, TorrentHash: "abc", Progress: 50, Status: TorrentDownloading})
	got := tr.events(EventTorrentProgress)
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].payload.(TorrentProgress).Progress)
	assert.Equal(t, "abc", got[0].payload.(TorrentProgress).TorrentHash)

	h.Emit(42, TorrentProgress{InstanceID: 9, TorrentHash: "def"})
	assert.Len(t, tr.events(EventTorrentProgress), 1, "instance 9 was never subscribed")

	assert.True(t, h.Disconnect(c1.ID()))
	assert.Empty(t, h.ConnectionsFor(42))
	assert.False(t, h.registry.HasUser(42))
	assert.Equal(t, StateDisconnected, c1.State())
	assert.Equal(t, 1, tr.closed)

	h.Emit(42, TorrentProgress{InstanceID: 7})
	assert.Len(t, tr.events(EventTorrentProgress), 1, "no event after disconnect")
}

func TestSubscribedKeyDeliversExactlyOnce(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "1")

	require.NoError(t, h.Subscribe(c.ID(), NamespaceMetrics, 3))
	require.NoError(t, h.Subscribe(c.ID(), NamespaceMetrics, 3))

	h.Emit(1, ServerMetrics{InstanceID: 3})
	h.Emit(1, ServerMetrics{InstanceID: 4})

	assert.Len(t, tr.events(EventServerMetrics), 1)
}

func TestNamespacesDoNotLeak(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "1")

	require.NoError(t, h.Subscribe(c.ID(), NamespaceTorrents, 3))

	h.Emit(1, ServerMetrics{InstanceID: 3})
	h.Emit(1, PluginStatus{PluginID: 3})

	assert.Empty(t, tr.events(EventServerMetrics))
	assert.Empty(t, tr.events(EventPluginStatus))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "1")

	require.NoError(t, h.Subscribe(c.ID(), NamespacePlugins, 5))
	require.NoError(t, h.Unsubscribe(c.ID(), NamespacePlugins, 5))
	require.NoError(t, h.Unsubscribe(c.ID(), NamespacePlugins, 5))

	h.Emit(1, PluginStatus{PluginID: 5})

	assert.Empty(t, tr.events(EventPluginStatus))
	assert.False(t, h.Subscribed(c.ID(), NamespacePlugins, 5))
}

func TestTwoConnectionsOnlySubscriberReceives(t *testing.T) {
	h := newTestHub()
	c1, tr1 := admit(t, h, "8")
	_, tr2 := admit(t, h, "8")

	require.NoError(t, h.Subscribe(c1.ID(), NamespacePlugins, 5))

	h.Emit(8, PluginStatus{PluginID: 5, IsEnabled: true, IsInstalled: true})

	assert.Len(t, tr1.events(EventPluginStatus), 1)
	assert.Empty(t, tr2.events(EventPluginStatus))
}

func TestErrorEventsBypassSubscriptions(t *testing.T) {
	h := newTestHub()
	_, tr1 := admit(t, h, "8")
	_, tr2 := admit(t, h, "8")
	_, other := admit(t, h, "9")

	h.Emit(8, ErrorNotice{Code: "UPSTREAM_DOWN", Message: "glances unreachable"})

	for _, tr := range []*fakeTransport{tr1, tr2} {
		got := tr.events(EventError)
		require.Len(t, got, 1)
		assert.Equal(t, "UPSTREAM_DOWN", got[0].payload.(ErrorNotice).Code)
	}
	assert.Empty(t, other.events(EventError), "errors are scoped to the target user")
}

func TestErrorContextIsCopiedOnEmit(t *testing.T) {
	h := newTestHub()
	_, tr := admit(t, h, "8")

	ctx := map[string]interface{}{"instanceId": int64(3)}
	h.Emit(8, ErrorNotice{Code: "METRICS_POLL_FAILED", Context: ctx})
	ctx["instanceId"] = int64(99)
	ctx["extra"] = true

	got := tr.events(EventError)
	require.Len(t, got, 1)
	delivered := got[0].payload.(ErrorNotice).Context
	assert.Equal(t, map[string]interface{}{"instanceId": int64(3)}, delivered)
}

func TestRouteUsesKindWireName(t *testing.T) {
	h := newTestHub()
	tests := []Event{
		ConnectionStatus{},
		PluginStatus{PluginID: 1},
		TorrentProgress{InstanceID: 2},
		ServerMetrics{InstanceID: 3},
		ErrorNotice{Code: "X"},
	}
	want := []string{EventConnectionStatus, EventPluginStatus, EventTorrentProgress, EventServerMetrics, EventError}

	for i, ev := range tests {
		env, ok := h.route(ev)
		require.True(t, ok)
		assert.Equal(t, want[i], env.name)
		assert.Equal(t, want[i], ev.Kind().String())
	}
	assert.Equal(t, "unknown", Kind(99).WireName())
}

func TestPushFailureIsIsolated(t *testing.T) {
	h := newTestHub()
	broken, trBroken := admit(t, h, "3")
	panicky, trPanicky := admit(t, h, "3")
	healthy, trHealthy := admit(t, h, "3")

	for _, c := range []*Conn{broken, panicky, healthy} {
		require.NoError(t, h.Subscribe(c.ID(), NamespaceMetrics, 1))
	}
	trBroken.mu.Lock()
	trBroken.sendErr = errors.New("send buffer full")
	trBroken.mu.Unlock()
	trPanicky.mu.Lock()
	trPanicky.panics = true
	trPanicky.mu.Unlock()

	assert.NotPanics(t, func() {
		h.Emit(3, ServerMetrics{InstanceID: 1})
	})
	assert.Len(t, trHealthy.events(EventServerMetrics), 1)
}

func TestEmitStampsMissingTimestamp(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "1")
	require.NoError(t, h.Subscribe(c.ID(), NamespacePlugins, 1))

	h.Emit(1, PluginStatus{PluginID: 1})
	h.Emit(1, PluginStatus{PluginID: 1, Timestamp: 5})

	got := tr.events(EventPluginStatus)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1700000000000), got[0].payload.(PluginStatus).Timestamp)
	assert.Equal(t, int64(5), got[1].payload.(PluginStatus).Timestamp)
}

func TestEmitPreservesOrderPerConnection(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "1")
	require.NoError(t, h.Subscribe(c.ID(), NamespaceTorrents, 1))

	for i := 0; i < 20; i++ {
		h.Emit(1, TorrentProgress{InstanceID: 1, Progress: float64(i)})
	}

	got := tr.events(EventTorrentProgress)
	require.Len(t, got, 20)
	for i, e := range got {
		assert.Equal(t, float64(i), e.payload.(TorrentProgress).Progress)
	}
}

func TestPingResendsAcknowledgement(t *testing.T) {
	h := newTestHub()
	c1, tr1 := admit(t, h, "5")
	_, tr2 := admit(t, h, "5")

	require.NoError(t, h.HandleControl(c1.ID(), ControlMessage{Event: ControlPing}))

	assert.Len(t, tr1.events(EventConnectionStatus), 2)
	assert.Len(t, tr2.events(EventConnectionStatus), 1)

	err := h.Ping("nope")
	assert.True(t, errors.Is(err, ErrUnknownConnection))
}

func TestPartialDisconnectKeepsUserEntry(t *testing.T) {
	h := newTestHub()
	c1, _ := admit(t, h, "5")
	c2, tr2 := admit(t, h, "5")

	h.Disconnect(c1.ID())

	assert.Equal(t, []string{c2.ID()}, h.ConnectionsFor(5))
	assert.Equal(t, Stats{Users: 1, Connections: 1}, h.Stats())

	h.Emit(5, ErrorNotice{Code: "X"})
	assert.Len(t, tr2.events(EventError), 1)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newTestHub()
	c, tr := admit(t, h, "5")

	assert.True(t, h.Disconnect(c.ID()))
	assert.False(t, h.Disconnect(c.ID()))
	assert.Equal(t, 1, tr.closed)
}

func TestMutationsOnDisconnectedConnection(t *testing.T) {
	h := newTestHub()
	c, _ := admit(t, h, "5")
	h.Disconnect(c.ID())

	assert.True(t, errors.Is(h.Subscribe(c.ID(), NamespacePlugins, 1), ErrUnknownConnection))
	assert.True(t, errors.Is(h.Unsubscribe(c.ID(), NamespacePlugins, 1), ErrUnknownConnection))
	assert.False(t, h.Subscribed(c.ID(), NamespacePlugins, 1))
}

func TestHandleControlErrors(t *testing.T) {
	h := newTestHub()
	c, _ := admit(t, h, "5")

	err := h.HandleControl(c.ID(), ControlMessage{Event: "subscribe:servers", Data: json.RawMessage(`1`)})
	assert.True(t, errors.Is(err, ErrUnknownControl))

	err = h.HandleControl(c.ID(), ControlMessage{Event: ControlSubscribeMetrics, Data: json.RawMessage(`"abc"`)})
	assert.True(t, errors.Is(err, ErrInvalidTopicKey))

	assert.True(t, errors.Is(h.Subscribe(c.ID(), Namespace(42), 1), ErrUnknownControl))
}

func TestStatsCounters(t *testing.T) {
	h := newTestHub()
	admit(t, h, "1")
	admit(t, h, "1")
	admit(t, h, "2")

	assert.Equal(t, Stats{Users: 2, Connections: 3}, h.Stats())
}

func TestCloseDisconnectsEverything(t *testing.T) {
	h := newTestHub()
	_, tr1 := admit(t, h, "1")
	_, tr2 := admit(t, h, "2")

	h.Close()

	assert.Equal(t, Stats{}, h.Stats())
	assert.Equal(t, 1, tr1.closed)
	assert.Equal(t, 1, tr2.closed)

	_, err := h.Admit(userHandshake("1"), &fakeTransport{})
	assert.True(t, errors.Is(err, ErrHubClosed))
}

func TestConcurrentEmitAndDisconnect(t *testing.T) {
	h := newTestHub()
	h.newID = uuid.NewString

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tr := &fakeTransport{}
				c, err := h.Admit(userHandshake("77"), tr)
				if err != nil {
					return
				}
				_ = h.Subscribe(c.ID(), NamespaceMetrics, 1)
				h.Emit(77, ServerMetrics{InstanceID: 1})
				h.Disconnect(c.ID())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Stats{}, h.Stats())
}
