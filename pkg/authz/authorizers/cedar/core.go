// Package cedar implements authorizers.Authorizer on top of Cedar, the
// policy language Amazon open-sourced for attribute-based access
// control, via github.com/cedar-policy/cedar-go.
package cedar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	cedargo "github.com/cedar-policy/cedar-go"
	"github.com/cedar-policy/cedar-go/types"

	"github.com/mcpruntime/core/pkg/auth"
	"github.com/mcpruntime/core/pkg/authz/authorizers"
)

var (
	ErrNoPolicies       = errors.New("cedar: at least one policy is required")
	ErrMissingPrincipal = errors.New("cedar: principal is required")
	ErrMissingAction    = errors.New("cedar: action is required")
	ErrMissingResource  = errors.New("cedar: resource is required")
)

// ConfigOptions is the Cedar backend's own configuration block: the
// policy set text and, optionally, a JSON-encoded entity store seed.
type ConfigOptions struct {
	Policies     []string `json:"policies"`
	EntitiesJSON string   `json:"entities,omitempty"`
}

// Authorizer evaluates MCP authorization requests against a Cedar
// policy set and entity store. Both may be replaced at runtime via
// UpdatePolicies/UpdateEntities without rebuilding the authorizer.
type Authorizer struct {
	mu       sync.RWMutex
	policies *cedargo.PolicySet
	entities types.EntityMap
	factory  *EntityFactory
}

var _ authorizers.Authorizer = (*Authorizer)(nil)

// NewCedarAuthorizer parses opts.Policies and opts.EntitiesJSON and
// returns a ready Authorizer. It returns authorizers.Authorizer so
// factories can construct one without importing the concrete type;
// callers needing UpdatePolicies/UpdateEntities/entity access type-assert
// to *Authorizer.
func NewCedarAuthorizer(opts ConfigOptions) (authorizers.Authorizer, error) {
	a := &Authorizer{factory: NewEntityFactory(), entities: types.EntityMap{}}
	if err := a.UpdatePolicies(opts.Policies); err != nil {
		return nil, err
	}
	entitiesJSON := opts.EntitiesJSON
	if entitiesJSON == "" {
		entitiesJSON = "[]"
	}
	if err := a.UpdateEntities(entitiesJSON); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdatePolicies replaces the active policy set.
func (a *Authorizer) UpdatePolicies(policies []string) error {
	if len(policies) == 0 {
		return ErrNoPolicies
	}
	var buf strings.Builder
	for _, p := range policies {
		buf.WriteString(p)
		buf.WriteString("\n")
	}
	ps, err := cedargo.NewPolicySetFromBytes("policies.cedar", []byte(buf.String()))
	if err != nil {
		return fmt.Errorf("cedar: invalid policy set: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.policies = ps
	return nil
}

// UpdateEntities replaces the entity store from a JSON-encoded array
// of Cedar entities.
func (a *Authorizer) UpdateEntities(entitiesJSON string) error {
	entities, err := types.EntitiesFromJSON(nil, strings.NewReader(entitiesJSON))
	if err != nil {
		return fmt.Errorf("cedar: invalid entities JSON: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entities = entities
	return nil
}

// AddEntity inserts or replaces a single entity in the store.
func (a *Authorizer) AddEntity(entity types.Entity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entities[entity.UID] = entity
}

// RemoveEntity deletes uid from the store, if present.
func (a *Authorizer) RemoveEntity(uid types.EntityUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entities, uid)
}

// GetEntity returns the entity for uid, if present.
func (a *Authorizer) GetEntity(uid types.EntityUID) (types.Entity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entities[uid]
	return e, ok
}

// GetEntityFactory returns the factory this authorizer uses to build
// entities and UIDs for ad-hoc requests.
func (a *Authorizer) GetEntityFactory() *EntityFactory { return a.factory }

// IsAuthorized evaluates principal/action/resource (each a "Type::id"
// string) with context against the active policy set. extraEntities,
// if given, is merged over the authorizer's stored entity set for this
// call only.
func (a *Authorizer) IsAuthorized(
	principal, action, resource string,
	context map[string]interface{},
	extraEntities ...types.EntityMap,
) (bool, error) {
	if principal == "" {
		return false, ErrMissingPrincipal
	}
	if action == "" {
		return false, ErrMissingAction
	}
	if resource == "" {
		return false, ErrMissingResource
	}

	pType, pID, err := splitTypedID(principal)
	if err != nil {
		return false, fmt.Errorf("cedar: invalid principal %q: %w", principal, err)
	}
	aType, aID, err := splitTypedID(action)
	if err != nil {
		return false, fmt.Errorf("cedar: invalid action %q: %w", action, err)
	}
	rType, rID, err := splitTypedID(resource)
	if err != nil {
		return false, fmt.Errorf("cedar: invalid resource %q: %w", resource, err)
	}

	req := cedargo.Request{
		Principal: types.NewEntityUID(types.EntityType(pType), types.String(pID)),
		Action:    types.NewEntityUID(types.EntityType(aType), types.String(aID)),
		Resource:  types.NewEntityUID(types.EntityType(rType), types.String(rID)),
		Context:   toRecord(context),
	}

	a.mu.RLock()
	policies := a.policies
	entities := a.entities
	a.mu.RUnlock()

	merged := entities
	if len(extraEntities) > 0 {
		merged = types.EntityMap{}
		for k, v := range entities {
			merged[k] = v
		}
		for _, extra := range extraEntities {
			for k, v := range extra {
				merged[k] = v
			}
		}
	}

	decision, _ := policies.IsAuthorized(merged, req)
	return decision == types.Allow, nil
}

// AuthorizeWithJWTClaims implements authorizers.Authorizer. It reads
// the caller's identity from ctx, turns every claim into a
// context.claim_<name> entry (plus context.arg_<name> for each
// argument) and evaluates it against the Cedar policy set.
func (a *Authorizer) AuthorizeWithJWTClaims(
	ctx context.Context,
	feature authorizers.MCPFeature,
	operation authorizers.MCPOperation,
	resourceID string,
	arguments map[string]interface{},
) (bool, error) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || identity.Subject == "" {
		return false, ErrMissingPrincipal
	}

	actionResource, err := actionAndResourceFor(feature, operation, resourceID)
	if err != nil {
		return false, err
	}

	cedarContext := map[string]interface{}{}
	for k, v := range identity.Claims {
		cedarContext["claim_"+k] = v
	}
	for k, v := range arguments {
		cedarContext["arg_"+k] = v
	}

	principal := fmt.Sprintf("Client::%s", identity.Subject)
	return a.IsAuthorized(principal, actionResource.action, actionResource.resource, cedarContext)
}

type actionResourcePair struct{ action, resource string }

func actionAndResourceFor(feature authorizers.MCPFeature, operation authorizers.MCPOperation, resourceID string) (actionResourcePair, error) {
	var actionVerb, resourceType, listNoun string
	switch feature {
	case authorizers.MCPFeatureTool:
		resourceType, listNoun = "Tool", "tools"
	case authorizers.MCPFeatureResource:
		resourceType, listNoun = "Resource", "resources"
	case authorizers.MCPFeaturePrompt:
		resourceType, listNoun = "Prompt", "prompts"
	default:
		return actionResourcePair{}, fmt.Errorf("cedar: unsupported feature %q", feature)
	}

	switch operation {
	case authorizers.MCPOperationCall:
		actionVerb = "call_tool"
	case authorizers.MCPOperationRead:
		actionVerb = "read_resource"
	case authorizers.MCPOperationGet:
		actionVerb = "get_prompt"
	case authorizers.MCPOperationList:
		return actionResourcePair{
			action:   fmt.Sprintf(`Action::"list_%s"`, listNoun),
			resource: fmt.Sprintf(`FeatureType::"%s"`, strings.TrimSuffix(listNoun, "s")),
		}, nil
	default:
		return actionResourcePair{}, fmt.Errorf("cedar: unsupported operation %q", operation)
	}

	return actionResourcePair{
		action:   fmt.Sprintf(`Action::"%s"`, actionVerb),
		resource: fmt.Sprintf(`%s::"%s"`, resourceType, resourceID),
	}, nil
}

// splitTypedID parses a "Type::id" or `Type::"id"` Cedar identifier
// string into its type and id components.
func splitTypedID(s string) (typ, id string, err error) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected Type::id, got %q", s)
	}
	return parts[0], strings.Trim(parts[1], `"`), nil
}
