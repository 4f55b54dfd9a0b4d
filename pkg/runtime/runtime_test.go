package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpruntime/core/pkg/audit"
	"github.com/mcpruntime/core/pkg/protocol"
	"github.com/mcpruntime/core/pkg/rbac"
	"github.com/mcpruntime/core/pkg/tools"
	"github.com/mcpruntime/core/pkg/transport"
	"github.com/mcpruntime/core/pkg/wire"
)

// loopbackTransport is an in-memory transport.Transport double: messages
// written with push are returned by Recv, and everything sent is
// captured for assertions.
type loopbackTransport struct {
	mu    sync.Mutex
	inbox chan *wire.Message
	sent  []*wire.Message
}

func newLoopbackTransport() *loopbackTransport {
	return &loopbackTransport{inbox: make(chan *wire.Message, 16)}
}

func (lt *loopbackTransport) push(msg *wire.Message) { lt.inbox <- msg }

func (lt *loopbackTransport) Send(msg *wire.Message) error {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.sent = append(lt.sent, msg)
	return nil
}

func (lt *loopbackTransport) Recv(ctx context.Context) (*wire.Message, error) {
	select {
	case msg := <-lt.inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (lt *loopbackTransport) Close(transport.CloseReason) error { return nil }

func (lt *loopbackTransport) sentMessages() []*wire.Message {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	out := make([]*wire.Message, len(lt.sent))
	copy(out, lt.sent)
	return out
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	rt, err := New(Config{AuthMode: AuthModeAnonymous})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// grantExecute lets the anonymous principal execute toolID.
func grantExecute(t *testing.T, rt *Runtime, toolID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, rt.rbacEngine.CreateRole(ctx, "caller", "caller"))
	require.NoError(t, rt.rbacEngine.AddPermissionToRole(ctx, "caller", rbac.Permission{ID: "exec-" + toolID, Resource: toolID, Action: "*"}))
	require.NoError(t, rt.rbacEngine.AssignRole(ctx, "bootstrap", "anonymous", "caller"))
}

// grantAdmin lets principal perform every role/context/audit management
// action this test suite's commands gate behind adminAuthorizer.
func grantAdmin(t *testing.T, rt *Runtime, principal string) {
	t.Helper()
	ctx := context.Background()
	roleID := "admin-" + principal
	require.NoError(t, rt.rbacEngine.CreateRole(ctx, roleID, roleID))
	require.NoError(t, rt.rbacEngine.AddPermissionToRole(ctx, roleID, rbac.Permission{ID: roleID + "-perm", Resource: "*", Action: "*"}))
	require.NoError(t, rt.rbacEngine.AssignRole(ctx, "bootstrap", principal, roleID))
}

func TestRuntime_HelloAuthenticateExecuteRoundTrip(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	require.NoError(t, rt.RegisterTool(&tools.Tool{
		ID:   "echo",
		Name: "echo",
		Executor: tools.ExecutorFunc(func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": args["message"]}, nil
		}),
	}))
	grantExecute(t, rt, "echo")

	lt := newLoopbackTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		rt.ServeSession(ctx, lt)
		close(done)
	}()

	hello, err := json.Marshal(protocol.HelloPayload{SupportedVersions: []wire.ProtocolVersion{wire.CurrentVersion}})
	require.NoError(t, err)
	lt.push(wire.NewRequest("session.hello", hello))

	authPayload, err := json.Marshal(protocol.AuthenticatePayload{})
	require.NoError(t, err)
	lt.push(wire.NewRequest("session.authenticate", authPayload))

	require.Eventually(t, func() bool { return len(lt.sentMessages()) >= 2 }, time.Second, time.Millisecond)

	execArgs, err := json.Marshal(map[string]any{"tool": "echo", "args": map[string]any{"message": "hi"}})
	require.NoError(t, err)
	lt.push(wire.NewRequest("tool.execute", execArgs))

	require.Eventually(t, func() bool { return len(lt.sentMessages()) >= 3 }, time.Second, time.Millisecond)
	last := lt.sentMessages()[2]
	require.Equal(t, wire.KindResponse, last.Kind)

	var result map[string]any
	require.NoError(t, json.Unmarshal(last.Payload, &result))
	assert.Equal(t, "hi", result["echoed"])

	cancel()
	<-done
}

func noopExecutor(context.Context, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

func TestRuntime_ToolListFiltersUnauthorizedTools(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	require.NoError(t, rt.RegisterTool(&tools.Tool{ID: "visible", Executor: tools.ExecutorFunc(noopExecutor)}))
	require.NoError(t, rt.RegisterTool(&tools.Tool{ID: "hidden", Executor: tools.ExecutorFunc(noopExecutor)}))
	grantExecute(t, rt, "visible")

	cmd, err := rt.cmdRegistry.Lookup("tool.list")
	require.NoError(t, err)
	result, err := cmd.Run(context.Background(), protocol.CallContext{
		Principal: "anonymous",
		Method:    "tool.list",
	})
	require.NoError(t, err)

	list, ok := result["tools"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "visible", list[0]["id"])
}

func TestRuntime_RoleAssignAndRevoke(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.rbacEngine.CreateRole(ctx, "viewer", "viewer"))
	require.NoError(t, rt.rbacEngine.AddPermissionToRole(ctx, "viewer", rbac.Permission{ID: "view", Resource: "docs", Action: "read"}))
	grantAdmin(t, rt, "system")

	assignCmd, err := rt.cmdRegistry.Lookup("role.assign")
	require.NoError(t, err)
	_, err = assignCmd.Run(ctx, protocol.CallContext{
		Principal: "system",
		Method:    "role.assign",
		Args:      map[string]any{"user_id": "bob", "role_id": "viewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.Allow, rt.rbacEngine.Authorize(ctx, "bob", "read", "docs"))

	revokeCmd, err := rt.cmdRegistry.Lookup("role.revoke")
	require.NoError(t, err)
	_, err = revokeCmd.Run(ctx, protocol.CallContext{
		Principal: "system",
		Method:    "role.revoke",
		Args:      map[string]any{"user_id": "bob", "role_id": "viewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, rbac.Deny, rt.rbacEngine.Authorize(ctx, "bob", "read", "docs"))
}

func TestRuntime_RoleAssignDeniedWithoutAdminPermission(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	ctx := context.Background()
	require.NoError(t, rt.rbacEngine.CreateRole(ctx, "viewer", "viewer"))

	assignCmd, err := rt.cmdRegistry.Lookup("role.assign")
	require.NoError(t, err)
	_, err = assignCmd.Run(ctx, protocol.CallContext{
		Principal: "anonymous",
		Method:    "role.assign",
		Args:      map[string]any{"user_id": "bob", "role_id": "viewer"},
	})
	require.Error(t, err)
}

func TestRuntime_ToolCancelIsIdempotentAfterCompletion(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	cmd, err := rt.cmdRegistry.Lookup("tool.cancel")
	require.NoError(t, err)

	result, err := cmd.Run(context.Background(), protocol.CallContext{
		Method: "tool.cancel",
		Args:   map[string]any{"request_id": "never-started"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, result["cancelled"])

	result, err = cmd.Run(context.Background(), protocol.CallContext{
		Method: "tool.cancel",
		Args:   map[string]any{"request_id": "never-started"},
	})
	require.NoError(t, err)
	assert.Equal(t, false, result["cancelled"])
}

func TestRuntime_ToolCancelInterruptsInFlightExecution(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)

	started := make(chan struct{})
	require.NoError(t, rt.RegisterTool(&tools.Tool{
		ID: "blocker",
		Executor: tools.ExecutorFunc(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	}))
	grantExecute(t, rt, "blocker")

	const correlationID = "req-1"
	execDone := make(chan error, 1)
	go func() {
		execCmd, err := rt.cmdRegistry.Lookup("tool.execute")
		if err != nil {
			execDone <- err
			return
		}
		_, err = execCmd.Run(context.Background(), protocol.CallContext{
			Principal:     "anonymous",
			Method:        "tool.execute",
			CorrelationID: correlationID,
			Args:          map[string]any{"tool": "blocker"},
		})
		execDone <- err
	}()

	<-started
	cancelCmd, err := rt.cmdRegistry.Lookup("tool.cancel")
	require.NoError(t, err)
	result, err := cancelCmd.Run(context.Background(), protocol.CallContext{
		Method: "tool.cancel",
		Args:   map[string]any{"request_id": correlationID},
	})
	require.NoError(t, err)
	assert.Equal(t, true, result["cancelled"])

	select {
	case err := <-execDone:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("execution did not observe cancellation")
	}

	again, err := cancelCmd.Run(context.Background(), protocol.CallContext{
		Method: "tool.cancel",
		Args:   map[string]any{"request_id": correlationID},
	})
	require.NoError(t, err)
	assert.Equal(t, false, again["cancelled"])
}

func TestRuntime_AuditQueryReturnsRecordedEvents(t *testing.T) {
	t.Parallel()
	rt := newTestRuntime(t)
	grantAdmin(t, rt, "system")

	rt.auditSink.Record(context.Background(), audit.NewAuditEvent(audit.EventTypeRoleAssign,
		audit.EventSource{Type: audit.SourceTypeInproc, Value: "test"}, audit.OutcomeSuccess,
		map[string]string{audit.SubjectKeyPrincipal: "carol"}, "test"))

	require.Eventually(t, func() bool {
		return len(rt.auditSink.Query(audit.QueryFilter{Principal: "carol"})) == 1
	}, time.Second, time.Millisecond)

	cmd, err := rt.cmdRegistry.Lookup("audit.query")
	require.NoError(t, err)
	result, err := cmd.Run(context.Background(), protocol.CallContext{
		Principal: "system",
		Method:    "audit.query",
		Args:      map[string]any{"principal": "carol"},
	})
	require.NoError(t, err)
	records, ok := result["records"].([]*audit.AuditEvent)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, audit.EventTypeRoleAssign, records[0].Type)
}
