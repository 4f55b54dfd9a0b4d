package audit

// Event types for the runtime's standard methods and notifications.
const (
	EventTypeSessionHello        = "session.hello"
	EventTypeSessionAuthenticate = "session.authenticate"
	EventTypeSessionPing         = "session.ping"
	EventTypeContextSnapshot     = "context.snapshot"
	EventTypeContextRestore      = "context.restore"
	EventTypeToolList            = "tool.list"
	EventTypeToolDescribe        = "tool.describe"
	EventTypeToolExecute         = "tool.execute"
	EventTypeToolCancel          = "tool.cancel"
	EventTypeRoleAssign          = "role.assign"
	EventTypeRoleRevoke          = "role.revoke"
	EventTypeAuditQuery          = "audit.query"

	// EventTypeRequest is the fallback for an extension method not in the
	// baseline set.
	EventTypeRequest = "request"

	// EventTypeSessionClosed marks a session's terminal audit record,
	// emitted exactly once when a session terminates.
	EventTypeSessionClosed = "session.closed"
)

// Target types for AuditEvent.Target[TargetKeyType].
const (
	TargetTypeTool    = "tool"
	TargetTypeContext = "context"
	TargetTypeRole    = "role"
	TargetTypeSession = "session"
)

// Target field keys.
const (
	TargetKeyType   = "type"
	TargetKeyMethod = "method"
	TargetKeyID     = "id"
)

// Subject field keys.
const (
	SubjectKeyPrincipal = "principal"
	SubjectKeyTokenType = "token_type"
)

// Metadata extra keys.
const (
	MetadataExtraKeyDuration  = "duration_ms"
	MetadataExtraKeyTransport = "transport"
	MetadataExtraKeyDimension = "dimension"
)

// methodEventTypes maps a protocol method name to its audit event type.
var methodEventTypes = map[string]string{
	"session.hello":        EventTypeSessionHello,
	"session.authenticate": EventTypeSessionAuthenticate,
	"session.ping":         EventTypeSessionPing,
	"context.snapshot":     EventTypeContextSnapshot,
	"context.restore":      EventTypeContextRestore,
	"tool.list":            EventTypeToolList,
	"tool.describe":        EventTypeToolDescribe,
	"tool.execute":         EventTypeToolExecute,
	"tool.cancel":          EventTypeToolCancel,
	"role.assign":          EventTypeRoleAssign,
	"role.revoke":          EventTypeRoleRevoke,
	"audit.query":          EventTypeAuditQuery,
}

// EventTypeForMethod maps a protocol method name to an audit event type,
// falling back to EventTypeRequest for extension methods a host has
// registered beyond the baseline set.
func EventTypeForMethod(method string) string {
	if t, ok := methodEventTypes[method]; ok {
		return t
	}
	return EventTypeRequest
}
