// Package tools implements the tool registry and executor contract:
// tools are registered once, looked up by id, and invoked under
// authorization, resource acquisition, cancellation, and audit, in that
// order, on every path.
package tools

import (
	"context"
)

// Executor is the capability a registered Tool delegates invocation to.
// Implementations should observe ctx cancellation at safe points; the
// executor is expected to return promptly once ctx is done.
type Executor interface {
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	return f(ctx, args)
}

// ResourceRequest is the fixed per-invocation resource delta a tool
// declares it will consume; the executor acquires exactly this amount
// before every call and releases it afterward regardless of outcome.
type ResourceRequest struct {
	MemoryBytes        int64
	CPUTimeMillis      int64
	FileHandles        int64
	NetworkConnections int64
}

// Tool is a registered tool descriptor.
type Tool struct {
	ID                   string
	Name                 string
	Description          string
	RequiredCapabilities []string
	Request              ResourceRequest
	MaxCPUTimeMillis     int64
	Executor             Executor
}
