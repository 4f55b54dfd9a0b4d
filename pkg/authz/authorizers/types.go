// Package authorizers defines the pluggable policy-authorizer contract
// and the registry backends register themselves under.
package authorizers

import (
	"context"
	"encoding/json"
)

// MCPFeature is the category of entity a policy decision is about.
type MCPFeature string

const (
	MCPFeatureTool     MCPFeature = "tool"
	MCPFeatureResource MCPFeature = "resource"
	MCPFeaturePrompt   MCPFeature = "prompt"
)

// MCPOperation is the action being attempted against a feature.
type MCPOperation string

const (
	MCPOperationCall MCPOperation = "call"
	MCPOperationRead MCPOperation = "read"
	MCPOperationGet  MCPOperation = "get"
	MCPOperationList MCPOperation = "list"
)

// Authorizer decides whether a principal may perform operation on
// feature/resourceID, given the caller's verified claims and any
// arguments it supplied.
type Authorizer interface {
	AuthorizeWithJWTClaims(
		ctx context.Context,
		feature MCPFeature,
		operation MCPOperation,
		resourceID string,
		arguments map[string]interface{},
	) (bool, error)
}

// AuthorizerFactory builds an Authorizer from a backend's raw
// configuration block. Backends register one under a ConfigType.
type AuthorizerFactory interface {
	ValidateConfig(rawConfig json.RawMessage) error
	CreateAuthorizer(rawConfig json.RawMessage, serverName string) (Authorizer, error)
}
