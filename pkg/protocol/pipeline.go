// Package protocol implements the request-handling pipeline and
// handshake/authentication flow driven once a session reaches
// StateActive (or, for session.hello/session.authenticate, while still
// negotiating): parse, dispatch to a registered command, run its stages
// in order, and package the result as a Response or Error correlated to
// the originating Request.
package protocol

import (
	"context"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// CallContext carries everything a command's stages need about the
// caller and the in-flight request.
type CallContext struct {
	SessionID     string
	Principal     string
	CorrelationID string
	Method        string
	Args          map[string]any
}

// ValidateFunc checks args are well-formed for a command, independent of
// who is calling or what resources are available.
type ValidateFunc func(args map[string]any) error

// HookFunc runs a side-effecting stage (pre- or post-execution) that may
// itself short-circuit the pipeline with an error.
type HookFunc func(ctx context.Context, call CallContext) error

// AuthorizeFunc decides whether call.Principal may invoke this command.
type AuthorizeFunc func(ctx context.Context, call CallContext) (bool, error)

// ExecuteFunc performs the command's actual work and returns its result
// payload.
type ExecuteFunc func(ctx context.Context, call CallContext) (map[string]any, error)

// Command is one registered method's full pipeline: validate, pre-hooks,
// authorize, execute, post-hooks, run strictly in that order. Any stage
// returning a non-nil error stops the pipeline there.
type Command struct {
	Method    string
	Validate  ValidateFunc
	PreHooks  []HookFunc
	Authorize AuthorizeFunc
	Execute   ExecuteFunc
	PostHooks []HookFunc
}

// Registry maps method names to their Command pipeline.
type Registry struct {
	commands map[string]Command
}

// NewRegistry returns an empty command Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

// Register adds cmd, keyed by cmd.Method. A duplicate registration
// replaces the prior entry; callers register once at startup.
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Method] = cmd
}

// Lookup returns the Command registered for method.
func (r *Registry) Lookup(method string) (Command, error) {
	cmd, ok := r.commands[method]
	if !ok {
		return Command{}, mcperrors.NewUnknownMethodError("no command registered for method "+method, nil)
	}
	return cmd, nil
}

// Run executes cmd's five stages in order against call, short-circuiting
// on the first stage to fail.
func (cmd Command) Run(ctx context.Context, call CallContext) (map[string]any, error) {
	if cmd.Validate != nil {
		if err := cmd.Validate(call.Args); err != nil {
			return nil, err
		}
	}
	for _, hook := range cmd.PreHooks {
		if err := hook(ctx, call); err != nil {
			return nil, err
		}
	}
	if cmd.Authorize != nil {
		allowed, err := cmd.Authorize(ctx, call)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, mcperrors.NewNotAuthorizedError("principal not authorized for "+call.Method, nil)
		}
	}
	result, err := cmd.Execute(ctx, call)
	if err != nil {
		return nil, err
	}
	for _, hook := range cmd.PostHooks {
		if err := hook(ctx, call); err != nil {
			return nil, err
		}
	}
	return result, nil
}
