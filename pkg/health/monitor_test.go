package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInventory struct {
	instances []*types.Instance
	plugins   []*types.Plugin
}

func (f *fakeInventory) ListInstances() ([]*types.Instance, error) { return f.instances, nil }
func (f *fakeInventory) ListPlugins() ([]*types.Plugin, error) { return f.plugins, nil }

type emitted struct {
	userID int64
	event  events.Event
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recordingEmitter) Emit(userID int64, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{userID, ev})
}

func (r *recordingEmitter) take() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// switchChecker returns whatever the test last told it to
type switchChecker struct {
	mu      sync.Mutex
	healthy bool
}

func (s *switchChecker) set(healthy bool) {
	s.mu.Lock()
	s.healthy = healthy
	s.mu.Unlock()
}

func (s *switchChecker) Check(context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{Healthy: s.healthy, Message: "probe", CheckedAt: time.Now()}
}

func (s *switchChecker) Type() CheckType { return CheckTypeHTTP }

func newTestMonitor(inv Inventory, em events.Emitter, checker Checker) *Monitor {
	m := NewMonitor(inv, em, Config{Interval: time.Hour, Timeout: time.Second, Retries: 2})
	m.newCheck = func(*types.Instance, time.Duration) Checker { return checker }
	return m
}

func TestMonitor_Transitions(t *testing.T) {
	inv := &fakeInventory{
		instances: []*types.Instance{{ID: 10, UserID: 42, Type: types.PluginTypeGlances, Name: "nas", URL: "http://nas"}},
		plugins:   []*types.Plugin{{ID: 5, UserID: 42, Type: types.PluginTypeGlances, IsEnabled: true, IsInstalled: true}},
	}
	em := &recordingEmitter{}
	checker := &switchChecker{healthy: true}
	m := newTestMonitor(inv, em, checker)
	ctx := context.Background()

	m.RunOnce(ctx)
	assert.Empty(t, em.take(), "healthy instance emits nothing")

	checker.set(false)
	m.RunOnce(ctx)
	assert.Empty(t, em.take(), "one failure is below the retry threshold")
	assert.True(t, m.Reachable(10))

	m.RunOnce(ctx)
	got := em.take()
	require.Len(t, got, 2)
	assert.Equal(t, int64(42), got[0].userID)
	status, ok := got[0].event.(events.PluginStatus)
	require.True(t, ok)
	assert.Equal(t, int64(5), status.PluginID)
	assert.Equal(t, MessageUnreachable, status.Message)
	notice, ok := got[1].event.(events.ErrorNotice)
	require.True(t, ok)
	assert.Equal(t, CodeInstanceUnreachable, notice.Code)
	assert.Equal(t, int64(10), notice.Context["instanceId"])
	assert.False(t, m.Reachable(10))

	m.RunOnce(ctx)
	assert.Empty(t, em.take(), "no repeat while still down")

	checker.set(true)
	m.RunOnce(ctx)
	got = em.take()
	require.Len(t, got, 1)
	assert.Equal(t, MessageReachable, got[0].event.(events.PluginStatus).Message)
	assert.True(t, m.Reachable(10))
}

func TestMonitor_SkipsInstancesWithoutEnabledPlugin(t *testing.T) {
	inv := &fakeInventory{
		instances: []*types.Instance{
			{ID: 1, UserID: 1, Type: types.PluginTypeGlances, URL: "http://a"},
			{ID: 2, UserID: 2, Type: types.PluginTypeQBittorrent, URL: "http://b"},
		},
		plugins: []*types.Plugin{
			{ID: 1, UserID: 1, Type: types.PluginTypeGlances, IsEnabled: false, IsInstalled: true},
			{ID: 2, UserID: 2, Type: types.PluginTypeGlances, IsEnabled: true, IsInstalled: true},
		},
	}
	em := &recordingEmitter{}
	m := newTestMonitor(inv, em, &switchChecker{healthy: false})

	targets, _, err := m.targets()
	require.NoError(t, err)
	assert.Empty(t, targets)

	m.RunOnce(context.Background())
	m.RunOnce(context.Background())
	assert.Empty(t, em.take())
}

func TestMonitor_PrunesRemovedInstances(t *testing.T) {
	inv := &fakeInventory{
		instances: []*types.Instance{{ID: 3, UserID: 1, Type: types.PluginTypeGlances, URL: "http://a"}},
		plugins:   []*types.Plugin{{ID: 1, UserID: 1, Type: types.PluginTypeGlances, IsEnabled: true, IsInstalled: true}},
	}
	m := newTestMonitor(inv, &recordingEmitter{}, &switchChecker{healthy: false})

	m.RunOnce(context.Background())
	m.RunOnce(context.Background())
	assert.False(t, m.Reachable(3))

	inv.instances = nil
	m.RunOnce(context.Background())
	assert.True(t, m.Reachable(3), "forgotten instances read as reachable")
}

func TestMonitor_StartStop(t *testing.T) {
	inv := &fakeInventory{}
	m := newTestMonitor(inv, &recordingEmitter{}, &switchChecker{healthy: true})

	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
