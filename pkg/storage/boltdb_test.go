package storage

import (
	"errors"
	"testing"

	"github.com/cuemby/labdeck/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPluginCRUD(t *testing.T) {
	store := newTestStore(t)

	p := &types.Plugin{UserID: 7, Type: types.PluginTypeQBittorrent, Name: "torrents", IsInstalled: true}
	require.NoError(t, store.CreatePlugin(p))
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	second := &types.Plugin{UserID: 8, Type: types.PluginTypeGlances, Name: "metrics"}
	require.NoError(t, store.CreatePlugin(second))
	assert.Equal(t, int64(2), second.ID)

	got, err := store.GetPlugin(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "torrents", got.Name)
	assert.Equal(t, types.PluginTypeQBittorrent, got.Type)

	got.IsEnabled = true
	require.NoError(t, store.UpdatePlugin(got))
	got, err = store.GetPlugin(p.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)

	all, err := store.ListPlugins()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := store.ListPluginsByUser(7)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, p.ID, mine[0].ID)

	require.NoError(t, store.DeletePlugin(p.ID))
	_, err = store.GetPlugin(p.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMissingRecords(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPlugin(99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetInstance(99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.UpdatePlugin(&types.Plugin{ID: 99}), ErrNotFound)
	assert.ErrorIs(t, store.DeletePlugin(99), ErrNotFound)
	assert.ErrorIs(t, store.DeleteInstance(99), ErrNotFound)
	assert.ErrorIs(t, store.DeleteAlertThreshold(99), ErrNotFound)

	plugins, err := store.ListPlugins()
	require.NoError(t, err)
	assert.Empty(t, plugins)
}

func TestInstanceQueries(t *testing.T) {
	store := newTestStore(t)

	glances := &types.Instance{UserID: 1, Type: types.PluginTypeGlances, Name: "nas", URL: "http://nas:61208"}
	qbit := &types.Instance{UserID: 1, Type: types.PluginTypeQBittorrent, Name: "qbit", URL: "http://qbit:8080", Username: "admin", Password: []byte{1, 2, 3}}
	other := &types.Instance{UserID: 2, Type: types.PluginTypeGlances, Name: "pi", URL: "http://pi:61208"}
	for _, inst := range []*types.Instance{glances, qbit, other} {
		require.NoError(t, store.CreateInstance(inst))
	}

	got, err := store.GetInstance(qbit.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got.Password)

	byType, err := store.ListInstancesByType(types.PluginTypeGlances)
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, glances.ID, byType[0].ID)
	assert.Equal(t, other.ID, byType[1].ID)

	byUser, err := store.ListInstancesByUser(1)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestDeleteInstanceCascadesThresholds(t *testing.T) {
	store := newTestStore(t)

	a := &types.Instance{UserID: 1, Type: types.PluginTypeGlances, Name: "a", URL: "http://a"}
	b := &types.Instance{UserID: 1, Type: types.PluginTypeGlances, Name: "b", URL: "http://b"}
	require.NoError(t, store.CreateInstance(a))
	require.NoError(t, store.CreateInstance(b))

	require.NoError(t, store.CreateAlertThreshold(&types.AlertThreshold{UserID: 1, InstanceID: a.ID, Metric: types.AlertMetricCPU, Percent: 90}))
	require.NoError(t, store.CreateAlertThreshold(&types.AlertThreshold{UserID: 1, InstanceID: a.ID, Metric: types.AlertMetricDisk, Percent: 80}))
	require.NoError(t, store.CreateAlertThreshold(&types.AlertThreshold{UserID: 1, InstanceID: b.ID, Metric: types.AlertMetricMemory, Percent: 75}))

	forA, err := store.ListAlertThresholdsByInstance(a.ID)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	require.NoError(t, store.DeleteInstance(a.ID))

	all, err := store.ListAlertThresholds()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].InstanceID)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.CreatePlugin(&types.Plugin{UserID: 1, Type: types.PluginTypeJexactyl, Name: "games"}))
	require.NoError(t, store.Close())

	store, err = NewBoltStore(dir)
	require.NoError(t, err)
	defer store.Close()

	plugins, err := store.ListPlugins()
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "games", plugins[0].Name)

	next := &types.Plugin{UserID: 1, Type: types.PluginTypeGlances, Name: "m"}
	require.NoError(t, store.CreatePlugin(next))
	assert.Equal(t, int64(2), next.ID)
}
