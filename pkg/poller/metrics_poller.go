package poller

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MetricsSampler produces one server:metrics snapshot
type MetricsSampler interface {
	Sample(ctx context.Context) (events.ServerMetrics, error)
}

// MetricsPoller samples every Glances instance, pushes server:metrics to
// the owner and raises threshold alerts
type MetricsPoller struct {
	source  Source
	creds   Credentials
	emitter events.Emitter
	config  Config
	loop    *loop
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[int64]cachedSampler
	alerts  *alertTracker

	newSampler func(inst *types.Instance, password string) MetricsSampler
}

type cachedSampler struct {
	fingerprint string
	sampler     MetricsSampler
}

// NewMetricsPoller creates a new metrics poller
func NewMetricsPoller(source Source, creds Credentials, emitter events.Emitter, config Config) *MetricsPoller {
	p := &MetricsPoller{
		source:  source,
		creds:   creds,
		emitter: emitter,
		config:  config,
		loop:    newLoop(config.Interval),
		logger:  log.WithComponent("metrics-poller"),
		clients: make(map[int64]cachedSampler),
		alerts:  newAlertTracker(),
	}
	p.newSampler = func(inst *types.Instance, password string) MetricsSampler {
		return NewGlancesClient(inst.URL, inst.Username, password, config.Timeout)
	}
	return p
}

// Start begins polling
func (p *MetricsPoller) Start(ctx context.Context) {
	p.loop.start(ctx, p.RunOnce)
}

// Stop stops polling
func (p *MetricsPoller) Stop() {
	p.loop.stop()
}

// RunOnce polls every Glances instance once
func (p *MetricsPoller) RunOnce(ctx context.Context) {
	instances, err := p.source.ListInstancesByType(types.PluginTypeGlances)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list instances")
		return
	}
	p.forget(instances)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			p.poll(gctx, inst)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *MetricsPoller) poll(ctx context.Context, inst *types.Instance) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PollDuration, "glances")

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	sample, err := p.sampler(inst).Sample(ctx)
	if err != nil {
		metrics.PollFailures.WithLabelValues("glances").Inc()
		p.logger.Warn().Err(err).Int64("instance_id", inst.ID).Msg("metrics poll failed")
		p.emitter.Emit(inst.UserID, events.ErrorNotice{
			Code:    CodeMetricsPollFailed,
			Message: fmt.Sprintf("failed to read metrics from %s: %v", inst.Name, err),
			Context: map[string]interface{}{"instanceId": inst.ID},
		})
		return
	}

	sample.InstanceID = inst.ID
	p.emitter.Emit(inst.UserID, sample)

	thresholds, err := p.source.ListAlertThresholdsByInstance(inst.ID)
	if err != nil {
		p.logger.Warn().Err(err).Int64("instance_id", inst.ID).Msg("failed to load alert thresholds")
		return
	}
	for _, notice := range p.alerts.evaluate(inst, sample, thresholds) {
		p.emitter.Emit(inst.UserID, notice)
	}
}

// sampler returns the cached client for an instance, rebuilding it when
// the instance's address or credentials changed
func (p *MetricsPoller) sampler(inst *types.Instance) MetricsSampler {
	fp := inst.URL + "\x00" + inst.Username + "\x00" + string(inst.Password)

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[inst.ID]; ok && c.fingerprint == fp {
		return c.sampler
	}
	s := p.newSampler(inst, password(p.creds, inst, p.logger))
	p.clients[inst.ID] = cachedSampler{fingerprint: fp, sampler: s}
	return s
}

// forget drops cached clients of removed instances
func (p *MetricsPoller) forget(live []*types.Instance) {
	keep := make(map[int64]struct{}, len(live))
	for _, inst := range live {
		keep[inst.ID] = struct{}{}
	}
	p.alerts.forget(keep)

	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.clients {
		if _, ok := keep[id]; !ok {
			delete(p.clients, id)
		}
	}
}

// alertTracker remembers which thresholds are currently exceeded so an
// alert fires once per crossing. fired is keyed by instance, then by
// threshold id.
type alertTracker struct {
	mu    sync.Mutex
	fired map[int64]map[int64]struct{}
}

func newAlertTracker() *alertTracker {
	return &alertTracker{fired: make(map[int64]map[int64]struct{})}
}

// forget drops the state of instances not in live
func (a *alertTracker) forget(live map[int64]struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id := range a.fired {
		if _, ok := live[id]; !ok {
			delete(a.fired, id)
		}
	}
}

// exceeded reports how many thresholds of an instance are currently held
func (a *alertTracker) exceeded(instanceID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.fired[instanceID])
}

func metricValue(sample events.ServerMetrics, metric types.AlertMetric) (float64, bool) {
	switch metric {
	case types.AlertMetricCPU:
		return sample.CPU.Percent, true
	case types.AlertMetricMemory:
		return sample.Memory.Percent, true
	case types.AlertMetricDisk:
		return sample.Disk.Percent, true
	}
	return 0, false
}

// evaluate returns an alert for every threshold that the sample crossed
// since the previous sample. A threshold re-arms once its metric drops
// back below it. Thresholds missing from the list are forgotten.
func (a *alertTracker) evaluate(inst *types.Instance, sample events.ServerMetrics, thresholds []*types.AlertThreshold) []events.ErrorNotice {
	a.mu.Lock()
	defer a.mu.Unlock()

	prev := a.fired[inst.ID]
	held := make(map[int64]struct{})

	var out []events.ErrorNotice
	for _, t := range thresholds {
		value, ok := metricValue(sample, t.Metric)
		if !ok || value < t.Percent {
			continue
		}
		held[t.ID] = struct{}{}
		if _, already := prev[t.ID]; already {
			continue
		}
		out = append(out, events.ErrorNotice{
			Code:    CodeThresholdExceeded,
			Message: fmt.Sprintf("%s %s usage at %.1f%% (threshold %.1f%%)", inst.Name, t.Metric, value, t.Percent),
			Context: map[string]interface{}{
				"instanceId": inst.ID,
				"metric":     string(t.Metric),
				"value":      value,
				"threshold":  t.Percent,
			},
		})
	}

	if len(held) == 0 {
		delete(a.fired, inst.ID)
	} else {
		a.fired[inst.ID] = held
	}
	return out
}
