// Package metrics exposes the runtime's Prometheus instrumentation:
// transport backpressure, per-tool resource status, audit-channel
// saturation, session lifecycle, and tool execution outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric the runtime records. Construct one with
// NewMetrics and pass it to the components that emit each signal.
type Metrics struct {
	// TransportBackpressure counts outbound sends rejected because a
	// transport's queue high-water mark was exceeded.
	// Labels: transport (websocket|stdio)
	TransportBackpressure *prometheus.CounterVec

	// TransportMessagesSent/Received count framed messages crossing a
	// transport in each direction.
	// Labels: transport, kind (request|response|notification|error)
	TransportMessagesSent     *prometheus.CounterVec
	TransportMessagesReceived *prometheus.CounterVec

	// ResourceUsageRatio tracks current/limit for each tool and
	// dimension, the same ratio pkg/resources classifies into
	// Normal/Warning/Critical.
	// Labels: tool_id, dimension
	ResourceUsageRatio *prometheus.GaugeVec

	// ResourceLimitAdjustments counts adaptive limit changes.
	// Labels: tool_id, dimension, direction (raise|lower)
	ResourceLimitAdjustments *prometheus.CounterVec

	// AuditChannelDepth tracks the audit sink's pending record count.
	AuditChannelDepth prometheus.Gauge

	// AuditRecordsDropped counts audit events discarded because the
	// sink's bounded channel was full.
	AuditRecordsDropped prometheus.Counter

	// SessionsActive is a gauge of currently tracked sessions.
	SessionsActive prometheus.Gauge

	// SessionsClosed counts session terminations.
	// Labels: reason
	SessionsClosed *prometheus.CounterVec

	// ToolExecutions counts tool invocations by outcome.
	// Labels: tool_id, outcome (success|denied|failure|error)
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool invocation latency.
	// Labels: tool_id
	ToolExecutionDuration *prometheus.HistogramVec
}

// NewMetrics constructs and registers every metric against reg. Pass
// prometheus.DefaultRegisterer to use the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransportBackpressure: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_transport_backpressure_total",
				Help: "Outbound sends rejected due to a full transport queue.",
			},
			[]string{"transport"},
		),
		TransportMessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_transport_messages_sent_total",
				Help: "Framed messages written to a transport.",
			},
			[]string{"transport", "kind"},
		),
		TransportMessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_transport_messages_received_total",
				Help: "Framed messages read from a transport.",
			},
			[]string{"transport", "kind"},
		),
		ResourceUsageRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpruntime_resource_usage_ratio",
				Help: "Current usage divided by current limit, per tool and dimension.",
			},
			[]string{"tool_id", "dimension"},
		),
		ResourceLimitAdjustments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_resource_limit_adjustments_total",
				Help: "Adaptive resource limit adjustments.",
			},
			[]string{"tool_id", "dimension", "direction"},
		),
		AuditChannelDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpruntime_audit_channel_depth",
				Help: "Number of audit records currently queued for the consumer.",
			},
		),
		AuditRecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpruntime_audit_records_dropped_total",
				Help: "Audit records discarded because the channel was full.",
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpruntime_sessions_active",
				Help: "Number of sessions currently tracked by the session manager.",
			},
		),
		SessionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_sessions_closed_total",
				Help: "Session terminations by reason.",
			},
			[]string{"reason"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpruntime_tool_executions_total",
				Help: "Tool executions by outcome.",
			},
			[]string{"tool_id", "outcome"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpruntime_tool_execution_duration_seconds",
				Help:    "Tool execution latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_id"},
		),
	}
}

// RecordBackpressure increments the backpressure counter for transport.
func (m *Metrics) RecordBackpressure(transportKind string) {
	m.TransportBackpressure.WithLabelValues(transportKind).Inc()
}

// RecordResourceUsage sets the usage ratio for toolID/dimension.
func (m *Metrics) RecordResourceUsage(toolID, dimension string, usage, limit int64) {
	if limit <= 0 {
		m.ResourceUsageRatio.WithLabelValues(toolID, dimension).Set(0)
		return
	}
	m.ResourceUsageRatio.WithLabelValues(toolID, dimension).Set(float64(usage) / float64(limit))
}

// RecordLimitAdjustment records an adaptive limit change.
func (m *Metrics) RecordLimitAdjustment(toolID, dimension, direction string) {
	m.ResourceLimitAdjustments.WithLabelValues(toolID, dimension, direction).Inc()
}

// RecordToolExecution records a completed tool invocation.
func (m *Metrics) RecordToolExecution(toolID, outcome string, durationSeconds float64) {
	m.ToolExecutions.WithLabelValues(toolID, outcome).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolID).Observe(durationSeconds)
}

// RecordSessionClosed records a session termination.
func (m *Metrics) RecordSessionClosed(reason string) {
	m.SessionsClosed.WithLabelValues(reason).Inc()
}
