package health

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Error code pushed when an instance stops answering probes
const CodeInstanceUnreachable = "INSTANCE_UNREACHABLE"

// Messages carried by plugin:status on reachability transitions
const (
	MessageUnreachable = "unreachable"
	MessageReachable   = "reachable"
)

// Inventory is the part of the store the monitor reads
type Inventory interface {
	ListInstances() ([]*types.Instance, error)
	ListPlugins() ([]*types.Plugin, error)
}

// Monitor probes the instances behind every enabled plugin and tells the
// owner when one becomes unreachable or recovers
type Monitor struct {
	inventory Inventory
	emitter   events.Emitter
	config    Config
	newCheck  func(*types.Instance, time.Duration) Checker

	mu       sync.Mutex
	statuses map[int64]*instanceStatus

	logger zerolog.Logger
	stopCh chan struct{}
	once   sync.Once
}

// instanceStatus tracks probe state for a single instance
type instanceStatus struct {
	url    string
	status *Status
}

// NewMonitor creates a new reachability monitor
func NewMonitor(inventory Inventory, emitter events.Emitter, config Config) *Monitor {
	return &Monitor{
		inventory: inventory,
		emitter:   emitter,
		config:    config,
		newCheck:  CheckerFor,
		statuses:  make(map[int64]*instanceStatus),
		logger:    log.WithComponent("health-monitor"),
		stopCh:    make(chan struct{}),
	}
}

// Start runs probe rounds every Interval until Stop or ctx is done
func (m *Monitor) Start(ctx context.Context) {
	go m.monitorLoop(ctx)
}

// Stop stops the monitor
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

func (m *Monitor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Run initial round immediately
	m.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// RunOnce probes every monitored instance concurrently and reports
// transitions
func (m *Monitor) RunOnce(ctx context.Context) {
	targets, plugins, err := m.targets()
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to load inventory")
		return
	}
	m.prune(targets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, inst := range targets {
		inst := inst
		g.Go(func() error {
			m.probe(gctx, inst, plugins[ownerType{inst.UserID, inst.Type}])
			return nil
		})
	}
	_ = g.Wait()
}

// ownerType keys plugins by the user and service type they cover
type ownerType struct {
	userID int64
	typ    types.PluginType
}

// targets returns instances that belong to an enabled plugin, along with
// the plugins each instance is reported under
func (m *Monitor) targets() ([]*types.Instance, map[ownerType][]*types.Plugin, error) {
	plugins, err := m.inventory.ListPlugins()
	if err != nil {
		return nil, nil, err
	}
	byOwner := make(map[ownerType][]*types.Plugin)
	for _, p := range plugins {
		if p.IsEnabled && p.IsInstalled {
			key := ownerType{p.UserID, p.Type}
			byOwner[key] = append(byOwner[key], p)
		}
	}

	instances, err := m.inventory.ListInstances()
	if err != nil {
		return nil, nil, err
	}
	var targets []*types.Instance
	for _, inst := range instances {
		if _, ok := byOwner[ownerType{inst.UserID, inst.Type}]; ok {
			targets = append(targets, inst)
		}
	}
	return targets, byOwner, nil
}

// prune forgets instances that are no longer monitored
func (m *Monitor) prune(targets []*types.Instance) {
	live := make(map[int64]struct{}, len(targets))
	for _, inst := range targets {
		live[inst.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.statuses {
		if _, ok := live[id]; !ok {
			delete(m.statuses, id)
			metrics.InstanceReachable.DeleteLabelValues(strconv.FormatInt(id, 10))
		}
	}
}

// probe runs one check for an instance and emits on a transition
func (m *Monitor) probe(ctx context.Context, inst *types.Instance, plugins []*types.Plugin) {
	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	result := m.newCheck(inst, m.config.Timeout).Check(checkCtx)

	m.mu.Lock()
	st, ok := m.statuses[inst.ID]
	if !ok || st.url != inst.URL {
		st = &instanceStatus{url: inst.URL, status: NewStatus()}
		m.statuses[inst.ID] = st
	}
	changed := st.status.Update(result, m.config)
	healthy := st.status.Healthy
	failures := st.status.ConsecutiveFailures
	m.mu.Unlock()

	label := strconv.FormatInt(inst.ID, 10)
	if healthy {
		metrics.InstanceReachable.WithLabelValues(label).Set(1)
	} else {
		metrics.InstanceReachable.WithLabelValues(label).Set(0)
	}

	logger := m.logger.With().Int64("instance_id", inst.ID).Int64("user_id", inst.UserID).Logger()
	if !result.Healthy {
		logger.Debug().Str("result", result.Message).Int("failures", failures).Msg("probe failed")
	}
	if !changed {
		return
	}

	message := MessageReachable
	if !healthy {
		message = MessageUnreachable
		logger.Warn().Str("result", result.Message).Msg("instance unreachable")
	} else {
		logger.Info().Msg("instance reachable again")
	}

	for _, p := range plugins {
		m.emitter.Emit(inst.UserID, events.PluginStatus{
			PluginID:    p.ID,
			PluginType:  p.Type,
			IsEnabled:   p.IsEnabled,
			IsInstalled: p.IsInstalled,
			Message:     message,
		})
	}
	if !healthy {
		m.emitter.Emit(inst.UserID, events.ErrorNotice{
			Code:    CodeInstanceUnreachable,
			Message: inst.Name + " is not responding: " + result.Message,
			Context: map[string]interface{}{
				"instanceId": inst.ID,
				"failures":   failures,
			},
		})
	}
}

// Reachable reports the last known reachability of an instance. Instances
// that were never probed are reported reachable.
func (m *Monitor) Reachable(instanceID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[instanceID]
	return !ok || st.status.Healthy
}
