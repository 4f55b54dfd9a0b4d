package authz

import (
	"context"

	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/authz/authorizers"
	"github.com/mcpruntime/core/pkg/tools"
)

// FilterTools returns the subset of candidates principal may call,
// evaluating each tool's ID individually against az rather than relying
// on a single list_tools decision, so a "permit list_tools, forbid
// call_tool for X" policy pair actually hides X from the listing.
func FilterTools(ctx context.Context, az authorizers.Authorizer, principal string, candidates []tools.Tool) ([]tools.Tool, error) {
	if az == nil {
		return candidates, nil
	}
	identityCtx := auth.WithIdentity(ctx, &auth.Identity{Subject: principal})

	filtered := make([]tools.Tool, 0, len(candidates))
	for _, t := range candidates {
		allowed, err := az.AuthorizeWithJWTClaims(identityCtx, authorizers.MCPFeatureTool, authorizers.MCPOperationCall, t.ID, nil)
		if err != nil {
			return nil, err
		}
		if allowed {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}
