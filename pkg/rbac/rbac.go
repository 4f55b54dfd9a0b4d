// Package rbac implements the runtime's credential-independent
// authorization decision engine: roles, permissions, an acyclic
// parent-role inheritance graph, and a deterministic authorize function.
//
// Credential verification lives in package auth; rbac only ever sees
// principal ids (the Identity.Subject a Verifier produced) and role
// assignments. The two meet in the session/protocol layer, which
// authenticates with auth then authorizes with rbac.
package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// Permission is an atomic (resource, action) authorization unit.
// Wildcard "*" matches any action or resource in that field.
type Permission struct {
	ID       string
	Resource string
	Action   string
}

func (p Permission) matches(action, resource string) bool {
	return (p.Action == "*" || p.Action == action) && (p.Resource == "*" || p.Resource == resource)
}

func (p Permission) key() string { return p.Resource + ":" + p.Action }

// Decision is the result of an authorize call.
type Decision int

const (
	// Deny is returned whenever no effective permission of the principal
	// matches the requested (action, resource) pair.
	Deny Decision = iota
	// Allow is returned when a matching permission was found.
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// AuditFunc receives a record of every authenticate/authorize decision and
// every role/permission mutation, regardless of outcome. The session
// layer wires this to the audit package's sink; rbac itself stays
// decoupled from any particular audit record shape.
type AuditFunc func(ctx context.Context, action, target, outcome string, metadata map[string]string)

type role struct {
	id          string
	name        string
	permissions map[string]Permission
	parents     map[string]struct{}
}

// Engine is the role/permission graph and authorization decision engine.
// All exported methods are safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	roles     map[string]*role
	userRoles map[string]map[string]struct{}

	// effectiveCache memoizes the fixpoint permission closure per role.
	// Cleared wholesale on any graph mutation: mutations are rare
	// compared to authorize() calls, so this trades a small amount of
	// recomputation for a trivially-correct invalidation rule (only
	// ancestor mutations actually require invalidation; clearing the
	// whole cache is a conservative superset of that requirement).
	// Guarded by its own mutex, not mu: Authorize and EffectivePermissions
	// only ever take mu.RLock (many readers run concurrently per
	// session), so a cache population write under mu's read lock would be
	// a concurrent map write across those readers.
	cacheMu        sync.Mutex
	effectiveCache map[string]map[string]Permission

	audit AuditFunc
}

// NewEngine constructs an empty Engine. audit may be nil, in which case
// mutations and decisions are not recorded.
func NewEngine(audit AuditFunc) *Engine {
	return &Engine{
		roles:          make(map[string]*role),
		userRoles:      make(map[string]map[string]struct{}),
		effectiveCache: make(map[string]map[string]Permission),
		audit:          audit,
	}
}

func (e *Engine) emit(ctx context.Context, action, target, outcome string, meta map[string]string) {
	if e.audit != nil {
		e.audit(ctx, action, target, outcome, meta)
	}
}

// CreateRole adds a new empty role. Returns ErrInvalidFormat if id is
// already registered.
func (e *Engine) CreateRole(ctx context.Context, id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.roles[id]; exists {
		e.emit(ctx, "create_role", id, "denied", nil)
		return mcperrors.NewInvalidFormatError("role already exists: "+id, nil)
	}
	e.roles[id] = &role{
		id:          id,
		name:        name,
		permissions: make(map[string]Permission),
		parents:     make(map[string]struct{}),
	}
	e.invalidateCacheLocked()
	e.emit(ctx, "create_role", id, "success", nil)
	return nil
}

// DeleteRole removes a role. Any user assignments and parent references to
// it are pruned as well.
func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.roles[id]; !exists {
		e.emit(ctx, "delete_role", id, "denied", nil)
		return mcperrors.NewInvalidFormatError("no such role: "+id, nil)
	}
	delete(e.roles, id)
	for _, r := range e.roles {
		delete(r.parents, id)
	}
	for user, roles := range e.userRoles {
		delete(roles, id)
		if len(roles) == 0 {
			delete(e.userRoles, user)
		}
	}
	e.invalidateCacheLocked()
	e.emit(ctx, "delete_role", id, "success", nil)
	return nil
}

// AddPermissionToRole grants perm to roleID.
func (e *Engine) AddPermissionToRole(ctx context.Context, roleID string, perm Permission) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.roles[roleID]
	if !ok {
		e.emit(ctx, "add_permission_to_role", roleID, "denied", nil)
		return mcperrors.NewInvalidFormatError("no such role: "+roleID, nil)
	}
	r.permissions[perm.key()] = perm
	e.invalidateCacheLocked()
	e.emit(ctx, "add_permission_to_role", roleID, "success", map[string]string{"permission": perm.ID})
	return nil
}

// AddParentRole makes parentID a parent of roleID, rejecting the mutation
// atomically if it would introduce a cycle in the inheritance graph. On
// rejection, the graph is left exactly as it was (round-trip atomicity).
func (e *Engine) AddParentRole(ctx context.Context, roleID, parentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.roles[roleID]
	if !ok {
		e.emit(ctx, "add_parent_role", roleID, "denied", nil)
		return mcperrors.NewInvalidFormatError("no such role: "+roleID, nil)
	}
	if _, ok := e.roles[parentID]; !ok {
		e.emit(ctx, "add_parent_role", roleID, "denied", nil)
		return mcperrors.NewInvalidFormatError("no such parent role: "+parentID, nil)
	}
	if roleID == parentID {
		e.emit(ctx, "add_parent_role", roleID, "denied", map[string]string{"reason": "self-parent"})
		return mcperrors.NewInvalidFormatError("role cannot be its own parent", nil)
	}

	// Cycle check: would adding roleID -> parentID create a path back to
	// roleID? Walk parentID's ancestry; if roleID appears, reject.
	if e.reachesLocked(parentID, roleID) {
		e.emit(ctx, "add_parent_role", roleID, "denied", map[string]string{"reason": "cycle"})
		return mcperrors.NewInvalidFormatError(
			fmt.Sprintf("adding %s as parent of %s would create a cycle", parentID, roleID), nil)
	}

	r.parents[parentID] = struct{}{}
	e.invalidateCacheLocked()
	e.emit(ctx, "add_parent_role", roleID, "success", map[string]string{"parent": parentID})
	return nil
}

// reachesLocked reports whether a DFS from start can reach target via
// parent edges. Caller must hold e.mu.
func (e *Engine) reachesLocked(start, target string) bool {
	if start == target {
		return true
	}
	visited := make(map[string]struct{})
	var walk func(string) bool
	walk = func(id string) bool {
		if id == target {
			return true
		}
		if _, seen := visited[id]; seen {
			return false
		}
		visited[id] = struct{}{}
		r, ok := e.roles[id]
		if !ok {
			return false
		}
		for p := range r.parents {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(start)
}

// AssignRole grants roleID to userID. If callerID differs from userID,
// no elevation check is performed (an administrator assigning a role to
// someone else must themselves already hold role.assign authority, which
// is enforced by the caller via Authorize before reaching here). If
// callerID equals userID (self-service assignment), the new role's
// permissions must already be a subset of the caller's current effective
// permissions, preventing self-elevation beyond what the caller already
// holds.
func (e *Engine) AssignRole(ctx context.Context, callerID, userID, roleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.roles[roleID]; !ok {
		e.emit(ctx, "assign_role", roleID, "denied", nil)
		return mcperrors.NewInvalidFormatError("no such role: "+roleID, nil)
	}

	if callerID == userID {
		callerPerms := e.effectivePermissionsLocked(e.rolesOfLocked(callerID))
		newPerms := e.effectivePermissionsLocked(map[string]struct{}{roleID: {}})
		for key := range newPerms {
			if _, has := callerPerms[key]; !has {
				e.emit(ctx, "assign_role", roleID, "denied", map[string]string{"reason": "self-elevation"})
				return mcperrors.NewNotAuthorizedError("self-assignment would elevate permissions", nil)
			}
		}
	}

	roles, ok := e.userRoles[userID]
	if !ok {
		roles = make(map[string]struct{})
		e.userRoles[userID] = roles
	}
	roles[roleID] = struct{}{}
	e.invalidateCacheLocked()
	e.emit(ctx, "assign_role", roleID, "success", map[string]string{"user": userID})
	return nil
}

// RevokeRole removes roleID from userID's direct role set.
func (e *Engine) RevokeRole(ctx context.Context, userID, roleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	roles, ok := e.userRoles[userID]
	if !ok {
		e.emit(ctx, "revoke_role", roleID, "denied", nil)
		return mcperrors.NewInvalidFormatError("user has no roles: "+userID, nil)
	}
	delete(roles, roleID)
	e.invalidateCacheLocked()
	e.emit(ctx, "revoke_role", roleID, "success", map[string]string{"user": userID})
	return nil
}

func (e *Engine) rolesOfLocked(userID string) map[string]struct{} {
	return e.userRoles[userID]
}

// invalidateCacheLocked clears the memoized effective-permission sets.
// Caller must hold e.mu for writing; cacheMu is taken internally.
func (e *Engine) invalidateCacheLocked() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.effectiveCache = make(map[string]map[string]Permission)
}

// effectivePermissionsLocked computes the union of effective(role) over
// roleIDs: permissions(role) union effective(p) for every parent p,
// fixpoint over the acyclic graph. Caller must hold e.mu (read or write).
func (e *Engine) effectivePermissionsLocked(roleIDs map[string]struct{}) map[string]Permission {
	result := make(map[string]Permission)
	for roleID := range roleIDs {
		for key, perm := range e.effectiveRoleLocked(roleID) {
			result[key] = perm
		}
	}
	return result
}

func (e *Engine) effectiveRoleLocked(roleID string) map[string]Permission {
	e.cacheMu.Lock()
	cached, ok := e.effectiveCache[roleID]
	e.cacheMu.Unlock()
	if ok {
		return cached
	}

	r, ok := e.roles[roleID]
	if !ok {
		return nil
	}

	result := make(map[string]Permission, len(r.permissions))
	for key, perm := range r.permissions {
		result[key] = perm
	}

	// Deterministic traversal order for reproducibility; the result is a
	// set union so order never affects content, only inconsequential
	// map-build order.
	parents := make([]string, 0, len(r.parents))
	for p := range r.parents {
		parents = append(parents, p)
	}
	sort.Strings(parents)
	for _, p := range parents {
		for key, perm := range e.effectiveRoleLocked(p) {
			result[key] = perm
		}
	}

	e.cacheMu.Lock()
	e.effectiveCache[roleID] = result
	e.cacheMu.Unlock()
	return result
}

// Authorize decides whether principal may perform action on resource. It
// is a pure function of the current role-store snapshot: two consecutive
// calls with an unchanged store return the same decision.
func (e *Engine) Authorize(ctx context.Context, principal, action, resource string) Decision {
	e.mu.RLock()
	perms := e.effectivePermissionsLocked(e.userRoles[principal])
	e.mu.RUnlock()

	decision := Deny
	for _, perm := range perms {
		if perm.matches(action, resource) {
			decision = Allow
			break
		}
	}

	outcome := "denied"
	if decision == Allow {
		outcome = "allowed"
	}
	e.emit(ctx, action, resource, outcome, map[string]string{"principal": principal})
	return decision
}

// EffectivePermissions returns the principal's current effective
// permission set, for diagnostics and audit.query responses.
func (e *Engine) EffectivePermissions(principal string) []Permission {
	e.mu.RLock()
	defer e.mu.RUnlock()
	perms := e.effectivePermissionsLocked(e.userRoles[principal])
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
