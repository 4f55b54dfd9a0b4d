package runtime

import (
	"context"
	"time"

	"github.com/mcpruntime/core/pkg/audit"
	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/authz/authorizers"
	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/protocol"
	"github.com/mcpruntime/core/pkg/rbac"
	"github.com/mcpruntime/core/pkg/tools"
)

// registerCommands wires the ten standard methods into rt.cmdRegistry.
// session.hello and session.authenticate are handled by the
// protocol.Authenticator during handshake, not through this registry.
func (rt *Runtime) registerCommands() {
	rt.cmdRegistry.Register(protocol.Command{
		Method:  "session.ping",
		Execute: rt.handlePing,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "context.snapshot",
		Authorize: rt.adminAuthorizer("snapshot", audit.TargetTypeContext),
		Execute:   rt.handleContextSnapshot,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "context.restore",
		Validate:  requireArg("version"),
		Authorize: rt.adminAuthorizer("restore", audit.TargetTypeContext),
		Execute:   rt.handleContextRestore,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:  "tool.list",
		Execute: rt.handleToolList,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "tool.describe",
		Validate:  requireArg("tool"),
		Authorize: rt.toolAuthorizer(authorizers.MCPOperationGet),
		Execute:   rt.handleToolDescribe,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:   "tool.execute",
		Validate: requireArg("tool"),
		Execute:  rt.handleToolExecute,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:   "tool.cancel",
		Validate: requireArg("request_id"),
		Execute:  rt.handleToolCancel,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "role.assign",
		Validate:  requireArgs("user_id", "role_id"),
		Authorize: rt.adminAuthorizer("assign", audit.TargetTypeRole),
		Execute:   rt.handleRoleAssign,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "role.revoke",
		Validate:  requireArgs("user_id", "role_id"),
		Authorize: rt.adminAuthorizer("revoke", audit.TargetTypeRole),
		Execute:   rt.handleRoleRevoke,
	})
	rt.cmdRegistry.Register(protocol.Command{
		Method:    "audit.query",
		Authorize: rt.adminAuthorizer("query", "audit"),
		Execute:   rt.handleAuditQuery,
	})
}

func requireArg(name string) protocol.ValidateFunc {
	return requireArgs(name)
}

func requireArgs(names ...string) protocol.ValidateFunc {
	return func(args map[string]any) error {
		for _, name := range names {
			if _, ok := args[name]; !ok {
				return mcperrors.NewInvalidFormatError("missing required argument: "+name, nil)
			}
		}
		return nil
	}
}

// adminAuthorizer gates a non-tool administrative command (context,
// role, audit management) through rbac regardless of AuthzBackend: the
// cedar backend only speaks to tool/resource/prompt decisions, so
// administrative actions are always rbac-governed.
func (rt *Runtime) adminAuthorizer(action, resourceType string) protocol.AuthorizeFunc {
	return func(ctx context.Context, call protocol.CallContext) (bool, error) {
		resource := resourceType
		if id, ok := call.Args["role_id"].(string); ok && id != "" {
			resource = id
		}
		return rt.rbacEngine.Authorize(ctx, call.Principal, action, resource) == rbac.Allow, nil
	}
}

// toolAuthorizer gates a tool.* command (other than tool.execute, which
// delegates its own authorization to tools.Engine) through whichever
// backend cfg selects.
func (rt *Runtime) toolAuthorizer(operation authorizers.MCPOperation) protocol.AuthorizeFunc {
	return func(ctx context.Context, call protocol.CallContext) (bool, error) {
		toolID, _ := call.Args["tool"].(string)
		allowed, err := rt.authorizeTool(ctx, call.Principal, operation, toolID)
		if err != nil {
			return false, err
		}
		if !allowed && rt.cfg.AuthzBackend == AuthzBackendCedar && rt.cedarAuthz != nil {
			rt.recordAuthzDenial(ctx, call.Principal, string(operation), toolID)
		}
		return allowed, nil
	}
}

func (rt *Runtime) authorizeTool(ctx context.Context, principal string, operation authorizers.MCPOperation, toolID string) (bool, error) {
	if rt.cfg.AuthzBackend == AuthzBackendCedar && rt.cedarAuthz != nil {
		identityCtx := auth.WithIdentity(ctx, &auth.Identity{Subject: principal})
		return rt.cedarAuthz.AuthorizeWithJWTClaims(identityCtx, authorizers.MCPFeatureTool, operation, toolID, nil)
	}
	return rt.rbacEngine.Authorize(ctx, principal, string(operation), toolID) == rbac.Allow, nil
}

// recordAuthzDenial audits a tool.* denial under the cedar backend,
// which (unlike rbac.Engine.Authorize) does not audit its own decisions.
func (rt *Runtime) recordAuthzDenial(ctx context.Context, principal, action, resource string) {
	event := audit.NewAuditEvent(action, audit.EventSource{Type: audit.SourceTypeInproc, Value: "cedar"}, audit.OutcomeDenied,
		map[string]string{audit.SubjectKeyPrincipal: principal}, "authz").
		WithTarget(map[string]string{audit.TargetKeyType: audit.TargetTypeTool, audit.TargetKeyID: resource})
	rt.auditSink.Record(ctx, event)
}

func (rt *Runtime) handlePing(_ context.Context, _ protocol.CallContext) (map[string]any, error) {
	return map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}, nil
}

func (rt *Runtime) handleContextSnapshot(_ context.Context, call protocol.CallContext) (map[string]any, error) {
	sess, err := rt.sessions.Get(call.SessionID)
	if err != nil {
		return nil, err
	}
	state, _ := call.Args["state"].(map[string]any)
	snap := sess.Snapshot(state)

	rt.mu.Lock()
	store := rt.snapshots
	rt.mu.Unlock()
	if store != nil {
		_ = rt.sessions.Persist(context.Background(), store, sess.ID())
	}

	return map[string]any{"version": snap.Version}, nil
}

func (rt *Runtime) handleContextRestore(_ context.Context, call protocol.CallContext) (map[string]any, error) {
	sess, err := rt.sessions.Get(call.SessionID)
	if err != nil {
		return nil, err
	}
	version, err := intArg(call.Args, "version")
	if err != nil {
		return nil, err
	}
	snap, ok := sess.Restore(version)
	if !ok {
		return nil, mcperrors.NewInvalidFormatError("no snapshot retained at the requested version", nil)
	}
	return map[string]any{"version": snap.Version, "state": snap.State}, nil
}

func (rt *Runtime) handleToolList(ctx context.Context, call protocol.CallContext) (map[string]any, error) {
	candidates := rt.toolsReg.ListMatching(stringSliceArg(call.Args, "capabilities"))

	allowed := make([]map[string]any, 0, len(candidates))
	for _, tool := range candidates {
		ok, err := rt.authorizeTool(ctx, call.Principal, authorizers.MCPOperationList, tool.ID)
		if err != nil || !ok {
			continue
		}
		allowed = append(allowed, toolSummary(tool))
	}
	return map[string]any{"tools": allowed}, nil
}

func (rt *Runtime) handleToolDescribe(_ context.Context, call protocol.CallContext) (map[string]any, error) {
	toolID, _ := call.Args["tool"].(string)
	tool, err := rt.toolsReg.Lookup(toolID)
	if err != nil {
		return nil, err
	}
	return toolSummary(tool), nil
}

func toolSummary(tool *tools.Tool) map[string]any {
	return map[string]any{
		"id":                    tool.ID,
		"name":                  tool.Name,
		"description":           tool.Description,
		"required_capabilities": tool.RequiredCapabilities,
		"max_cpu_time_millis":   tool.MaxCPUTimeMillis,
	}
}

func (rt *Runtime) handleToolExecute(ctx context.Context, call protocol.CallContext) (map[string]any, error) {
	toolID, _ := call.Args["tool"].(string)
	args, _ := call.Args["args"].(map[string]any)

	invCtx, cancel := context.WithCancel(ctx)
	rt.invocations.register(call.CorrelationID, cancel)
	defer rt.invocations.remove(call.CorrelationID)
	defer cancel()

	start := time.Now()
	result, err := rt.toolsEngine.Execute(invCtx, toolID, args, tools.InvocationContext{
		Principal:     call.Principal,
		CorrelationID: call.CorrelationID,
	})
	if rt.metrics != nil {
		rt.metrics.RecordToolExecution(toolID, outcomeLabel(err), time.Since(start).Seconds())
	}
	return result, err
}

func outcomeLabel(err error) string {
	if err == nil {
		return audit.OutcomeSuccess
	}
	if mcperrors.IsCancelled(err) {
		return "cancelled"
	}
	return audit.OutcomeFailure
}

// handleToolCancel cancels the tool.execute invocation identified by
// request_id. Repeated cancellation of an id that has already finished
// or was never started returns Ok with cancelled=false: tool.cancel is
// idempotent by design, never an error.
func (rt *Runtime) handleToolCancel(_ context.Context, call protocol.CallContext) (map[string]any, error) {
	requestID, _ := call.Args["request_id"].(string)
	found := rt.invocations.cancel(requestID)
	return map[string]any{"cancelled": found}, nil
}

func (rt *Runtime) handleRoleAssign(ctx context.Context, call protocol.CallContext) (map[string]any, error) {
	userID, _ := call.Args["user_id"].(string)
	roleID, _ := call.Args["role_id"].(string)
	if err := rt.rbacEngine.AssignRole(ctx, call.Principal, userID, roleID); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": userID, "role_id": roleID}, nil
}

func (rt *Runtime) handleRoleRevoke(ctx context.Context, call protocol.CallContext) (map[string]any, error) {
	userID, _ := call.Args["user_id"].(string)
	roleID, _ := call.Args["role_id"].(string)
	if err := rt.rbacEngine.RevokeRole(ctx, userID, roleID); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": userID, "role_id": roleID}, nil
}

func (rt *Runtime) handleAuditQuery(_ context.Context, call protocol.CallContext) (map[string]any, error) {
	filter := audit.QueryFilter{}
	if principal, ok := call.Args["principal"].(string); ok {
		filter.Principal = principal
	}
	if eventType, ok := call.Args["type"].(string); ok {
		filter.Type = eventType
	}
	if limit, err := intArg(call.Args, "limit"); err == nil {
		filter.Limit = limit
	}
	events := rt.auditSink.Query(filter)
	records := make([]*audit.AuditEvent, len(events))
	copy(records, events)
	return map[string]any{"records": records}, nil
}

// stringSliceArg reads a string-slice argument that may have arrived
// either as a native []string (in-process callers) or, via a JSON wire
// codec, as []any of strings.
func stringSliceArg(args map[string]any, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// intArg reads a numeric argument decoded from JSON, which wire codecs
// surface as float64, accepting a plain int as well for in-process
// callers that build CallContext.Args by hand.
func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, mcperrors.NewInvalidFormatError("argument "+name+" must be a number", nil)
	}
}
