// Package resources tracks per-tool resource usage against adjustable
// limits across four dimensions (memory, CPU time, file handles, and
// network connections).
package resources

import (
	"sort"
	"sync"
	"time"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// Dimension identifies one of the four tracked resource axes.
type Dimension string

const (
	DimensionMemoryBytes       Dimension = "memory_bytes"
	DimensionCPUTimeMillis     Dimension = "cpu_time_millis"
	DimensionFileHandles       Dimension = "file_handles"
	DimensionNetworkConnection Dimension = "network_connections"
)

var allDimensions = [...]Dimension{
	DimensionMemoryBytes,
	DimensionCPUTimeMillis,
	DimensionFileHandles,
	DimensionNetworkConnection,
}

// Usage holds the current consumption for each dimension.
type Usage struct {
	MemoryBytes        int64
	CPUTimeMillis      int64
	FileHandles        int64
	NetworkConnections int64
}

// Limits holds the current and permissible bounds for each dimension.
// Base and Max never change after initialize; Current moves between
// them as the adaptive manager adjusts it.
type Limits struct {
	MemoryBytes        Limit
	CPUTimeMillis      Limit
	FileHandles        Limit
	NetworkConnections Limit
}

// Limit is one dimension's (base, current, max) triple. AdjustLimit
// keeps Current within [Base, Max]; Initialize stores the limits it is
// given without checking that Base <= Current <= Max.
type Limit struct {
	Base    int64
	Current int64
	Max     int64
}

// DefaultLimits returns the default resource tier, used when a caller
// omits explicit limits at initialize.
func DefaultLimits() Limits {
	const mib = 1024 * 1024
	return Limits{
		MemoryBytes:        Limit{Base: 100 * mib, Current: 100 * mib, Max: 500 * mib},
		CPUTimeMillis:      Limit{Base: 30_000, Current: 30_000, Max: 120_000},
		FileHandles:        Limit{Base: 50, Current: 50, Max: 200},
		NetworkConnections: Limit{Base: 10, Current: 10, Max: 50},
	}
}

func (l Limits) get(d Dimension) Limit {
	switch d {
	case DimensionMemoryBytes:
		return l.MemoryBytes
	case DimensionCPUTimeMillis:
		return l.CPUTimeMillis
	case DimensionFileHandles:
		return l.FileHandles
	case DimensionNetworkConnection:
		return l.NetworkConnections
	default:
		return Limit{}
	}
}

func (l *Limits) set(d Dimension, v Limit) {
	switch d {
	case DimensionMemoryBytes:
		l.MemoryBytes = v
	case DimensionCPUTimeMillis:
		l.CPUTimeMillis = v
	case DimensionFileHandles:
		l.FileHandles = v
	case DimensionNetworkConnection:
		l.NetworkConnections = v
	}
}

func (u Usage) get(d Dimension) int64 {
	switch d {
	case DimensionMemoryBytes:
		return u.MemoryBytes
	case DimensionCPUTimeMillis:
		return u.CPUTimeMillis
	case DimensionFileHandles:
		return u.FileHandles
	case DimensionNetworkConnection:
		return u.NetworkConnections
	default:
		return 0
	}
}

func (u *Usage) add(d Dimension, delta int64) {
	switch d {
	case DimensionMemoryBytes:
		u.MemoryBytes += delta
	case DimensionCPUTimeMillis:
		u.CPUTimeMillis += delta
	case DimensionFileHandles:
		u.FileHandles += delta
	case DimensionNetworkConnection:
		u.NetworkConnections += delta
	}
}

// Status is the tracker's health classification for a tool.
type Status int

const (
	StatusNormal Status = iota
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

const (
	warningThreshold  = 0.80
	criticalThreshold = 0.95
)

// Sample is one point in a tool's bounded usage history, consumed by
// the adaptive manager's moving-average/trend analysis.
type Sample struct {
	Usage     Usage
	Limits    Limits
	Timestamp time.Time
}

const defaultHistoryCapacity = 256

// history is a fixed-capacity ring buffer of Samples, oldest overwritten
// first.
type history struct {
	samples []Sample
	next    int
	size    int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &history{samples: make([]Sample, capacity)}
}

func (h *history) append(s Sample) {
	h.samples[h.next] = s
	h.next = (h.next + 1) % len(h.samples)
	if h.size < len(h.samples) {
		h.size++
	}
}

// recent returns up to n most-recent samples, oldest first.
func (h *history) recent(n int) []Sample {
	if n > h.size {
		n = h.size
	}
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		idx := (h.next - n + i + len(h.samples)) % len(h.samples)
		out[i] = h.samples[idx]
	}
	return out
}

type tracker struct {
	mu      sync.RWMutex
	usage   Usage
	limits  Limits
	history *history
}

// Manager owns all per-tool trackers. It exclusively owns usage/limits
// state; other components only ever see snapshots returned by its read
// methods.
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*tracker
}

// NewManager returns an empty resource Manager.
func NewManager() *Manager {
	return &Manager{trackers: make(map[string]*tracker)}
}

// Initialize creates tracker state for toolID. It fails if toolID is
// already initialized.
func (m *Manager) Initialize(toolID string, limits Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.trackers[toolID]; exists {
		return mcperrors.NewInternalError("resource tracker already initialized for tool: "+toolID, nil)
	}
	m.trackers[toolID] = &tracker{limits: limits, history: newHistory(defaultHistoryCapacity)}
	return nil
}

func (m *Manager) get(toolID string) (*tracker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[toolID]
	if !ok {
		return nil, mcperrors.NewToolNotFoundError("no resource tracker for tool: "+toolID, nil)
	}
	return t, nil
}

// Acquire atomically checks usage+delta <= limit across all four
// dimensions and, on success, applies delta. On failure it returns
// ResourceExhausted naming the first dimension that would overflow and
// applies no partial update.
func (m *Manager) Acquire(toolID string, delta Usage) error {
	t, err := m.get(toolID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, d := range allDimensions {
		limit := t.limits.get(d)
		if t.usage.get(d)+delta.get(d) > limit.Current {
			return mcperrors.NewResourceExhaustedError(
				"resource limit exceeded for tool "+toolID+" dimension "+string(d), nil)
		}
	}
	for _, d := range allDimensions {
		t.usage.add(d, delta.get(d))
	}
	t.history.append(Sample{Usage: t.usage, Limits: t.limits, Timestamp: time.Now()})
	return nil
}

// Release atomically subtracts delta from usage, saturating at zero so
// usage never underflows below zero regardless of caller bookkeeping
// errors.
func (m *Manager) Release(toolID string, delta Usage) error {
	t, err := m.get(toolID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, d := range allDimensions {
		v := t.usage.get(d) - delta.get(d)
		if v < 0 {
			v = 0
		}
		t.usage.add(d, v-t.usage.get(d))
	}
	t.history.append(Sample{Usage: t.usage, Limits: t.limits, Timestamp: time.Now()})
	return nil
}

// Status reports the tool's worst-case classification across all four
// dimensions: Critical at >=95% of the current limit, Warning at >=80%,
// Normal otherwise.
func (m *Manager) Status(toolID string) (Status, error) {
	t, err := m.get(toolID)
	if err != nil {
		return StatusNormal, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	worst := StatusNormal
	for _, d := range allDimensions {
		limit := t.limits.get(d)
		if limit.Current <= 0 {
			continue
		}
		ratio := float64(t.usage.get(d)) / float64(limit.Current)
		switch {
		case ratio >= criticalThreshold:
			return StatusCritical, nil
		case ratio >= warningThreshold:
			worst = StatusWarning
		}
	}
	return worst, nil
}

// Snapshot returns the tool's current usage and limits.
func (m *Manager) Snapshot(toolID string) (Usage, Limits, error) {
	t, err := m.get(toolID)
	if err != nil {
		return Usage{}, Limits{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usage, t.limits, nil
}

// History returns up to n of the tool's most recent usage samples,
// oldest first.
func (m *Manager) History(toolID string, n int) ([]Sample, error) {
	t, err := m.get(toolID)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.history.recent(n), nil
}

// AdjustLimit sets dimension d's Current limit for toolID, clamped to
// [base, max]. Only the adaptive manager should call this.
func (m *Manager) AdjustLimit(toolID string, d Dimension, newCurrent int64) error {
	t, err := m.get(toolID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.limits.get(d)
	if newCurrent < limit.Base {
		newCurrent = limit.Base
	}
	if newCurrent > limit.Max {
		newCurrent = limit.Max
	}
	limit.Current = newCurrent
	t.limits.set(d, limit)
	return nil
}

// ToolIDsAscending returns every initialized tool id in ascending
// lexical order, the order the adaptive manager must iterate in to
// avoid lock-ordering deadlocks across tools.
func (m *Manager) ToolIDsAscending() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.trackers))
	for id := range m.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
