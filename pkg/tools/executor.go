package tools

import (
	"context"
	"time"

	"github.com/mcpruntime/core/pkg/audit"
	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/resources"
)

// gracePeriod is awaited after a timed-out invocation's cancellation
// signal before the invocation is forcibly abandoned.
const gracePeriod = 500 * time.Millisecond

// Authorizer decides whether principal may perform action on resource.
// The executor calls it with action="execute" before invoking a tool.
type Authorizer interface {
	Authorize(ctx context.Context, principal, action, resource string) (bool, error)
}

// AuthorizerFunc adapts a plain function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, principal, action, resource string) (bool, error)

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, principal, action, resource string) (bool, error) {
	return f(ctx, principal, action, resource)
}

// InvocationContext carries the caller identity and correlation
// information an execution needs beyond the tool id and arguments.
type InvocationContext struct {
	Principal     string
	CorrelationID string
}

// Engine ties the registry, resource manager, authorizer, and audit
// sink together into the execute(tool_id, args, invocation_context)
// operation.
type Engine struct {
	registry  *Registry
	resources *resources.Manager
	authz     Authorizer
	auditSink *audit.Sink
}

// NewEngine returns an Engine wiring together the four collaborators
// the executor contract requires.
func NewEngine(registry *Registry, rm *resources.Manager, authz Authorizer, sink *audit.Sink) *Engine {
	return &Engine{registry: registry, resources: rm, authz: authz, auditSink: sink}
}

// Execute runs the five-step contract: lookup, authorize, acquire,
// invoke-with-timeout, and always release plus audit regardless of
// outcome.
func (e *Engine) Execute(ctx context.Context, toolID string, args map[string]any, invCtx InvocationContext) (result map[string]any, err error) {
	tool, err := e.registry.Lookup(toolID)
	if err != nil {
		e.record(ctx, toolID, invCtx, audit.OutcomeFailure, err)
		return nil, err
	}

	allowed, authErr := e.authz.Authorize(ctx, invCtx.Principal, "execute", toolID)
	if authErr != nil {
		e.record(ctx, toolID, invCtx, audit.OutcomeError, authErr)
		return nil, authErr
	}
	if !allowed {
		denyErr := mcperrors.NewNotAuthorizedError("principal not authorized to execute tool: "+toolID, nil)
		e.record(ctx, toolID, invCtx, audit.OutcomeDenied, denyErr)
		return nil, denyErr
	}

	wg, active := e.registry.beginInvocation(toolID)
	if !active {
		notFound := mcperrors.NewToolNotFoundError("tool unregistered before execution: "+toolID, nil)
		e.record(ctx, toolID, invCtx, audit.OutcomeFailure, notFound)
		return nil, notFound
	}
	defer wg.Done()

	usage := resources.Usage{
		MemoryBytes:        tool.Request.MemoryBytes,
		CPUTimeMillis:      tool.Request.CPUTimeMillis,
		FileHandles:        tool.Request.FileHandles,
		NetworkConnections: tool.Request.NetworkConnections,
	}
	if acqErr := e.resources.Acquire(toolID, usage); acqErr != nil {
		e.record(ctx, toolID, invCtx, audit.OutcomeFailure, acqErr)
		return nil, acqErr
	}
	defer func() {
		_ = e.resources.Release(toolID, usage)
	}()

	result, err = e.invoke(ctx, tool, args)

	outcome := audit.OutcomeSuccess
	switch {
	case mcperrors.IsTimeout(err):
		outcome = audit.OutcomeFailure
	case mcperrors.IsCancelled(err):
		outcome = audit.OutcomeFailure
	case err != nil:
		outcome = audit.OutcomeFailure
	}
	e.record(ctx, toolID, invCtx, outcome, err)
	return result, err
}

// invoke runs tool.Executor under a wall-clock timeout derived from the
// tool's declared max CPU time, then the grace period, before forcibly
// abandoning the call with Timeout. Abandonment never skips the
// caller's release, which Execute's defer still runs.
func (e *Engine) invoke(ctx context.Context, tool *Tool, args map[string]any) (map[string]any, error) {
	timeout := time.Duration(tool.MaxCPUTimeMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result map[string]any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := tool.Executor.Execute(callCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, mcperrors.NewToolExecutionFailedError("tool execution failed", o.err)
		}
		return o.result, nil
	case <-callCtx.Done():
		select {
		case o := <-done:
			if o.err != nil {
				return nil, mcperrors.NewToolExecutionFailedError("tool execution failed", o.err)
			}
			return o.result, nil
		case <-time.After(gracePeriod):
			return nil, mcperrors.NewTimeoutError("tool execution timed out and was abandoned after grace period", callCtx.Err())
		}
	}
}

func (e *Engine) record(ctx context.Context, toolID string, invCtx InvocationContext, outcome string, err error) {
	if e.auditSink == nil {
		return
	}
	subjects := map[string]string{audit.SubjectKeyPrincipal: invCtx.Principal}
	target := map[string]string{audit.TargetKeyType: audit.TargetTypeTool, audit.TargetKeyID: toolID}

	event := audit.NewAuditEvent(audit.EventTypeToolExecute,
		audit.EventSource{Type: audit.SourceTypeInproc, Value: invCtx.Principal}, outcome, subjects, "tools").
		WithTarget(target)
	if err != nil {
		event.WithMetadata("error", err.Error())
	}
	e.auditSink.Record(ctx, event)
}
