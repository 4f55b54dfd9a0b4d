package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditEvent(t *testing.T) {
	t.Parallel()
	source := EventSource{
		Type:  SourceTypeNetwork,
		Value: "192.168.1.100",
		Extra: map[string]any{"user_agent": "test-agent"},
	}
	subjects := map[string]string{SubjectKeyPrincipal: "alice"}

	event := NewAuditEvent(EventTypeToolExecute, source, OutcomeSuccess, subjects, "tool-executor")

	assert.NotEmpty(t, event.Metadata.AuditID)
	assert.Equal(t, EventTypeToolExecute, event.Type)
	assert.Equal(t, OutcomeSuccess, event.Outcome)
	assert.Equal(t, source, event.Source)
	assert.Equal(t, subjects, event.Subjects)
	assert.Equal(t, "tool-executor", event.Component)
	assert.WithinDuration(t, time.Now().UTC(), event.LoggedAt, time.Second)
}

func TestNewAuditEventWithID(t *testing.T) {
	t.Parallel()
	source := EventSource{Type: SourceTypeLocal, Value: "localhost"}
	subjects := map[string]string{SubjectKeyPrincipal: "admin"}

	event := NewAuditEventWithID("custom-audit-id", EventTypeRoleAssign, source, OutcomeSuccess, subjects, "rbac")

	assert.Equal(t, "custom-audit-id", event.Metadata.AuditID)
	assert.Equal(t, EventTypeRoleAssign, event.Type)
	assert.Equal(t, "rbac", event.Component)
}

func TestAuditEventWithTarget(t *testing.T) {
	t.Parallel()
	event := NewAuditEvent("test", EventSource{}, OutcomeSuccess, map[string]string{}, "test")
	target := map[string]string{TargetKeyType: TargetTypeTool, TargetKeyID: "weather"}

	result := event.WithTarget(target)

	assert.Same(t, event, result)
	assert.Equal(t, target, event.Target)
}

func TestAuditEventWithData(t *testing.T) {
	t.Parallel()
	event := NewAuditEvent("test", EventSource{}, OutcomeSuccess, map[string]string{}, "test")
	dataBytes, err := json.Marshal(map[string]any{"key": "value"})
	require.NoError(t, err)
	rawMsg := json.RawMessage(dataBytes)

	result := event.WithData(&rawMsg)

	assert.Same(t, event, result)
	assert.Equal(t, &rawMsg, event.Data)
}

func TestAuditEventWithMetadata(t *testing.T) {
	t.Parallel()
	event := NewAuditEvent("test", EventSource{}, OutcomeSuccess, map[string]string{}, "test")

	result := event.WithMetadata(MetadataExtraKeyDuration, 150)

	assert.Same(t, event, result)
	assert.Equal(t, 150, event.Metadata.Extra[MetadataExtraKeyDuration])
}

func TestAuditEventJSONRoundTrip(t *testing.T) {
	t.Parallel()
	source := EventSource{Type: SourceTypeNetwork, Value: "10.0.0.1"}
	subjects := map[string]string{SubjectKeyPrincipal: "john.doe"}
	target := map[string]string{TargetKeyType: TargetTypeTool, TargetKeyID: "calculator"}

	event := NewAuditEvent(EventTypeToolExecute, source, OutcomeSuccess, subjects, "calculator-service")
	event.WithTarget(target)
	event.WithMetadata(MetadataExtraKeyDuration, 150)
	event.WithMetadata(MetadataExtraKeyTransport, "websocket")

	jsonData, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded AuditEvent
	require.NoError(t, json.Unmarshal(jsonData, &decoded))

	assert.Equal(t, event.Metadata.AuditID, decoded.Metadata.AuditID)
	assert.Equal(t, event.Type, decoded.Type)
	assert.Equal(t, event.Outcome, decoded.Outcome)
	assert.Equal(t, event.Source, decoded.Source)
	assert.Equal(t, event.Subjects, decoded.Subjects)
	assert.Equal(t, event.Target, decoded.Target)
	assert.Equal(t, float64(150), decoded.Metadata.Extra[MetadataExtraKeyDuration])
	assert.Equal(t, "websocket", decoded.Metadata.Extra[MetadataExtraKeyTransport])
}

func TestEventTypeForMethod(t *testing.T) {
	t.Parallel()
	assert.Equal(t, EventTypeToolExecute, EventTypeForMethod("tool.execute"))
	assert.Equal(t, EventTypeSessionHello, EventTypeForMethod("session.hello"))
	assert.Equal(t, EventTypeRequest, EventTypeForMethod("custom.extension"))
}

func TestOutcomeConstants(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "success", OutcomeSuccess)
	assert.Equal(t, "failure", OutcomeFailure)
	assert.Equal(t, "error", OutcomeError)
	assert.Equal(t, "denied", OutcomeDenied)
}
