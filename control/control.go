// Package control
// Author: momentics <momentics@gmail.com>
//
// Control facade implementing api.Control using the config, metrics and debug primitives.

package control

import (
	"github.com/momentics/hioload-echo/api"
)

// Control combines a config store, a metrics registry and debug probes.
type Control struct {
	config  *ConfigStore
	metrics *MetricsRegistry
	debug   *DebugProbes
}

var _ api.Control = (*Control)(nil)

// New returns a Control with platform probes registered.
func New() *Control {
	c := &Control{
		config:  NewConfigStore(),
		metrics: NewMetricsRegistry(),
		debug:   NewDebugProbes(),
	}
	RegisterPlatformProbes(c.debug)
	return c
}

func (c *Control) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}

func (c *Control) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges counters with probe output; probe keys get a "debug." prefix.
func (c *Control) Stats() map[string]any {
	counters := c.metrics.GetSnapshot()
	probes := c.debug.DumpState()
	combined := make(map[string]any, len(counters)+len(probes))
	for k, v := range counters {
		combined[k] = v
	}
	for k, v := range probes {
		combined["debug."+k] = v
	}
	return combined
}

func (c *Control) OnReload(fn func()) {
	c.config.OnReload(fn)
}

func (c *Control) AddMetric(key string, delta int64) int64 {
	return c.metrics.Add(key, delta)
}

// Metric reads a single counter.
func (c *Control) Metric(key string) int64 {
	return c.metrics.Get(key)
}

func (c *Control) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}
