// Package authz wires the pluggable policy backends in
// pkg/authz/authorizers onto the protocol command pipeline, and filters
// tool/resource/prompt listings down to what a principal may see.
package authz

import (
	"context"
	"fmt"

	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/authz/authorizers"
	"github.com/mcpruntime/core/pkg/protocol"
)

// ResourceIDFunc extracts the feature-specific resource identifier
// (tool name, resource URI, prompt name) a command's args name, so one
// Middleware can be reused across a family of methods.
type ResourceIDFunc func(call protocol.CallContext) string

// Middleware returns a protocol.AuthorizeFunc that asks az whether
// call.Principal may perform operation against feature/resourceID(call).
// It wraps ctx with an auth.Identity carrying call.Principal as subject
// so az's claims-based policies see a stable principal even when the
// pipeline itself only tracks the resolved subject, not raw JWT claims.
func Middleware(
	az authorizers.Authorizer,
	feature authorizers.MCPFeature,
	operation authorizers.MCPOperation,
	resourceID ResourceIDFunc,
) protocol.AuthorizeFunc {
	return func(ctx context.Context, call protocol.CallContext) (bool, error) {
		if call.Principal == "" {
			return false, fmt.Errorf("authz: call has no resolved principal")
		}
		identityCtx := auth.WithIdentity(ctx, &auth.Identity{Subject: call.Principal})
		id := ""
		if resourceID != nil {
			id = resourceID(call)
		}
		return az.AuthorizeWithJWTClaims(identityCtx, feature, operation, id, call.Args)
	}
}
