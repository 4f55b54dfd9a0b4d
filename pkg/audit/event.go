// Package audit implements the runtime's append-only AuditRecord sink:
// a bounded MPSC channel feeding a single consumer that serializes
// records to a rotating log file.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outcome values for AuditEvent.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// EventSource identifies where an audited action originated.
type EventSource struct {
	Type  string         `json:"type"`
	Value string         `json:"value"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Source types for EventSource.Type.
const (
	SourceTypeNetwork = "network"
	SourceTypeLocal   = "local"
	SourceTypeInproc  = "in_process"
)

// EventMetadata carries the audit record's own identity plus free-form
// extra fields (duration, transport kind, response size, ...).
type EventMetadata struct {
	AuditID string         `json:"audit_id"`
	Seq     uint64         `json:"seq"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// AuditEvent is the runtime's AuditRecord: {timestamp, actor, action,
// target, outcome, metadata}, specialized with an MCP event Type and
// structured Source/Subjects/Target maps.
type AuditEvent struct {
	Type      string            `json:"type"`
	Source    EventSource       `json:"source"`
	Outcome   string            `json:"outcome"`
	Subjects  map[string]string `json:"subjects,omitempty"`
	Target    map[string]string `json:"target,omitempty"`
	Component string            `json:"component"`
	Metadata  EventMetadata     `json:"metadata"`
	Data      *json.RawMessage  `json:"data,omitempty"`
	LoggedAt  time.Time         `json:"logged_at"`
}

// NewAuditEvent builds an event with a freshly generated audit id.
func NewAuditEvent(eventType string, source EventSource, outcome string, subjects map[string]string, component string) *AuditEvent {
	return NewAuditEventWithID(uuid.NewString(), eventType, source, outcome, subjects, component)
}

// NewAuditEventWithID builds an event with a caller-supplied audit id, for
// callers that must correlate the event with an id minted elsewhere (e.g.
// the originating MessageId).
func NewAuditEventWithID(auditID, eventType string, source EventSource, outcome string, subjects map[string]string, component string) *AuditEvent {
	return &AuditEvent{
		Type:      eventType,
		Source:    source,
		Outcome:   outcome,
		Subjects:  subjects,
		Component: component,
		Metadata:  EventMetadata{AuditID: auditID},
		LoggedAt:  time.Now().UTC(),
	}
}

// WithTarget attaches target information and returns the event for
// chaining.
func (e *AuditEvent) WithTarget(target map[string]string) *AuditEvent {
	e.Target = target
	return e
}

// WithData attaches a raw JSON payload (request/response capture, role
// mutation detail) and returns the event for chaining.
func (e *AuditEvent) WithData(data *json.RawMessage) *AuditEvent {
	e.Data = data
	return e
}

// WithMetadata sets a metadata extra key and returns the event for
// chaining.
func (e *AuditEvent) WithMetadata(key string, value any) *AuditEvent {
	if e.Metadata.Extra == nil {
		e.Metadata.Extra = make(map[string]any)
	}
	e.Metadata.Extra[key] = value
	return e
}
