// Package adaptive periodically inspects each tool's resource usage
// history and adjusts its current limits.
package adaptive

import (
	"context"
	"time"

	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/resources"
)

// Config tunes the adaptive pass.
type Config struct {
	// Interval between passes. Default 60s.
	Interval time.Duration

	// RaiseStep multiplies a limit when raising it (default 1.25).
	RaiseStep float64

	// LowerStep multiplies a limit when lowering it (default 0.8).
	LowerStep float64

	// RaiseThreshold is the moving-average/limit ratio that, sustained
	// for RaiseWindows consecutive windows with a non-decreasing trend,
	// triggers a raise. Default 0.70.
	RaiseThreshold float64

	// RaiseWindows is the number of consecutive windows required before
	// raising. Default 3.
	RaiseWindows int

	// LowerThreshold is the moving-average/limit ratio that, sustained
	// for LowerWindows consecutive windows, triggers a lower. Default
	// 0.25.
	LowerThreshold float64

	// LowerWindows is the number of consecutive windows required before
	// lowering. Default 5.
	LowerWindows int

	// Predicate, if set, additionally gates every adjustment: it is
	// invoked with the dimension's moving average and limit and must
	// return true for the adjustment to apply. Used to wire in an
	// operator-supplied CEL expression without adaptive needing to know
	// about CEL itself.
	Predicate func(dimension resources.Dimension, movingAverage, limit float64) bool
}

// DefaultConfig returns the default tuning for the adjustment pass.
func DefaultConfig() Config {
	return Config{
		Interval:       60 * time.Second,
		RaiseStep:      1.25,
		LowerStep:      0.8,
		RaiseThreshold: 0.70,
		RaiseWindows:   3,
		LowerThreshold: 0.25,
		LowerWindows:   5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.RaiseStep <= 1 {
		c.RaiseStep = d.RaiseStep
	}
	if c.LowerStep <= 0 || c.LowerStep >= 1 {
		c.LowerStep = d.LowerStep
	}
	if c.RaiseThreshold <= 0 {
		c.RaiseThreshold = d.RaiseThreshold
	}
	if c.RaiseWindows <= 0 {
		c.RaiseWindows = d.RaiseWindows
	}
	if c.LowerThreshold <= 0 {
		c.LowerThreshold = d.LowerThreshold
	}
	if c.LowerWindows <= 0 {
		c.LowerWindows = d.LowerWindows
	}
	return c
}

var allDimensions = []resources.Dimension{
	resources.DimensionMemoryBytes,
	resources.DimensionCPUTimeMillis,
	resources.DimensionFileHandles,
	resources.DimensionNetworkConnection,
}

func dimensionValue(u resources.Usage, d resources.Dimension) int64 {
	switch d {
	case resources.DimensionMemoryBytes:
		return u.MemoryBytes
	case resources.DimensionCPUTimeMillis:
		return u.CPUTimeMillis
	case resources.DimensionFileHandles:
		return u.FileHandles
	case resources.DimensionNetworkConnection:
		return u.NetworkConnections
	default:
		return 0
	}
}

func currentLimit(l resources.Limits, d resources.Dimension) resources.Limit {
	switch d {
	case resources.DimensionMemoryBytes:
		return l.MemoryBytes
	case resources.DimensionCPUTimeMillis:
		return l.CPUTimeMillis
	case resources.DimensionFileHandles:
		return l.FileHandles
	case resources.DimensionNetworkConnection:
		return l.NetworkConnections
	default:
		return resources.Limit{}
	}
}

// Manager runs the periodic adaptive pass over a resources.Manager.
type Manager struct {
	cfg       Config
	resources *resources.Manager
}

// NewManager returns a Manager that adjusts limits tracked by rm.
func NewManager(rm *resources.Manager, cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults(), resources: rm}
}

// Run blocks, executing one pass every cfg.Interval, until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Pass()
		}
	}
}

// Pass runs one adaptive adjustment over every initialized tool, in
// ascending tool-id order: this traversal order plus the
// resources.Manager's own per-tool locking is the sole discipline
// preventing deadlock against concurrent invocations acquiring/releasing
// on other tools.
func (m *Manager) Pass() {
	for _, toolID := range m.resources.ToolIDsAscending() {
		m.adjustTool(toolID)
	}
}

func (m *Manager) adjustTool(toolID string) {
	samples, err := m.resources.History(toolID, m.cfg.LowerWindows)
	if err != nil || len(samples) == 0 {
		return
	}

	for _, d := range allDimensions {
		m.adjustDimension(toolID, d, samples)
	}
}

func (m *Manager) adjustDimension(toolID string, d resources.Dimension, samples []resources.Sample) {
	limit := currentLimit(samples[len(samples)-1].Limits, d)
	if limit.Current <= 0 {
		return
	}

	avg := movingAverage(samples, d)
	trend := linearTrend(samples, d)
	ratio := avg / float64(limit.Current)

	if m.cfg.Predicate != nil && !m.cfg.Predicate(d, avg, float64(limit.Current)) {
		return
	}

	switch {
	case len(samples) >= m.cfg.RaiseWindows && sustainedAtLeast(samples, d, limit.Current, m.cfg.RaiseThreshold, m.cfg.RaiseWindows) && trend >= 0:
		newLimit := int64(float64(limit.Current) * m.cfg.RaiseStep)
		if newLimit > limit.Max {
			newLimit = limit.Max
		}
		if newLimit == limit.Current {
			return
		}
		if err := m.resources.AdjustLimit(toolID, d, newLimit); err == nil {
			logger.Infof("adaptive: raised %s limit for tool %s to %d (avg ratio %.2f)", d, toolID, newLimit, ratio)
		}
	case len(samples) >= m.cfg.LowerWindows && sustainedAtMost(samples, d, limit.Current, m.cfg.LowerThreshold, m.cfg.LowerWindows):
		newLimit := int64(float64(limit.Current) * m.cfg.LowerStep)
		if newLimit < limit.Base {
			newLimit = limit.Base
		}
		if newLimit == limit.Current {
			return
		}
		if err := m.resources.AdjustLimit(toolID, d, newLimit); err == nil {
			logger.Infof("adaptive: lowered %s limit for tool %s to %d (avg ratio %.2f)", d, toolID, newLimit, ratio)
		}
	}
}

func movingAverage(samples []resources.Sample, d resources.Dimension) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		sum += dimensionValue(s.Usage, d)
	}
	return float64(sum) / float64(len(samples))
}

// linearTrend returns the slope of a simple least-squares fit of
// dimension d's usage against sample index. Non-negative means
// non-decreasing.
func linearTrend(samples []resources.Sample, d resources.Dimension) float64 {
	n := len(samples)
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, s := range samples {
		x := float64(i)
		y := float64(dimensionValue(s.Usage, d))
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (nf*sumXY - sumX*sumY) / denom
}

// sustainedAtLeast reports whether the last windows samples all have
// dimension d's usage/limit ratio >= threshold.
func sustainedAtLeast(samples []resources.Sample, d resources.Dimension, limit int64, threshold float64, windows int) bool {
	if len(samples) < windows || limit <= 0 {
		return false
	}
	for _, s := range samples[len(samples)-windows:] {
		if float64(dimensionValue(s.Usage, d))/float64(limit) < threshold {
			return false
		}
	}
	return true
}

// sustainedAtMost reports whether the last windows samples all have
// dimension d's usage/limit ratio <= threshold.
func sustainedAtMost(samples []resources.Sample, d resources.Dimension, limit int64, threshold float64, windows int) bool {
	if len(samples) < windows || limit <= 0 {
		return false
	}
	for _, s := range samples[len(samples)-windows:] {
		if float64(dimensionValue(s.Usage, d))/float64(limit) > threshold {
			return false
		}
	}
	return true
}
