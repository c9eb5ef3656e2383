package metrics

import (
	"strconv"
	"time"

	"github.com/cuemby/labdeck/pkg/types"
)

// InventorySource lists the persisted records the collector counts
type InventorySource interface {
	ListPlugins() ([]*types.Plugin, error)
	ListInstances() ([]*types.Instance, error)
	ListAlertThresholds() ([]*types.AlertThreshold, error)
}

// Collector periodically samples inventory counts into gauges
type Collector struct {
	source   InventorySource
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new inventory collector
func NewCollector(source InventorySource) *Collector {
	return &Collector{
		source:   source,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples every inventory gauge once
func (c *Collector) Collect() {
	c.collectPluginMetrics()
	c.collectInstanceMetrics()
	c.collectAlertMetrics()
}

func (c *Collector) collectPluginMetrics() {
	plugins, err := c.source.ListPlugins()
	if err != nil {
		return
	}

	PluginsTotal.Reset()
	counts := make(map[[2]string]int)
	for _, p := range plugins {
		counts[[2]string{string(p.Type), strconv.FormatBool(p.IsEnabled)}]++
	}
	for labels, count := range counts {
		PluginsTotal.WithLabelValues(labels[0], labels[1]).Set(float64(count))
	}
}

func (c *Collector) collectInstanceMetrics() {
	instances, err := c.source.ListInstances()
	if err != nil {
		return
	}

	InstancesTotal.Reset()
	counts := make(map[types.PluginType]int)
	for _, inst := range instances {
		counts[inst.Type]++
	}
	for typ, count := range counts {
		InstancesTotal.WithLabelValues(string(typ)).Set(float64(count))
	}
}

func (c *Collector) collectAlertMetrics() {
	thresholds, err := c.source.ListAlertThresholds()
	if err != nil {
		return
	}

	AlertThresholdsTotal.Set(float64(len(thresholds)))
}
