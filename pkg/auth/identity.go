// Package auth provides authentication primitives for the MCP runtime:
// principal identity, credential verification, and the credential store
// backing the RBAC layer in package rbac.
package auth

import (
	"encoding/json"
	"fmt"
)

// Identity represents an authenticated principal: a user or service account
// that has passed a Verifier and may now be authorized against the role
// graph. It is the value session.Session stores once authentication
// succeeds.
type Identity struct {
	// Subject is the unique identifier for the principal, stable across
	// authentication attempts (maps to a rbac user id).
	Subject string

	// Name is the human-readable display name, if known.
	Name string

	// Email is the principal's email address, if known.
	Email string

	// Groups this identity belongs to. Authorization logic should prefer
	// Claims for provider-specific group claim names; Groups is populated
	// only by verifiers that have a canonical notion of group membership.
	Groups []string

	// Claims carries verifier-specific auxiliary data (JWT claims, local
	// metadata) consulted by policy-based authorizers.
	Claims map[string]any

	// Token is the original credential presented, retained for pass-through
	// scenarios. Always redacted by String and MarshalJSON.
	Token string

	// TokenType names the credential kind ("Bearer", "local", "anonymous").
	TokenType string

	// Metadata stores additional identity information set by the verifier.
	Metadata map[string]string
}

// String returns a representation of the Identity with sensitive fields
// redacted, safe to pass to a logger.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q}", i.Subject)
}

// MarshalJSON implements json.Marshaler, redacting Token so identities can be
// embedded in audit records and API responses without leaking credentials.
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil {
		return []byte("null"), nil
	}

	type safeIdentity struct {
		Subject   string            `json:"subject"`
		Name      string            `json:"name"`
		Email     string            `json:"email"`
		Groups    []string          `json:"groups"`
		Claims    map[string]any    `json:"claims"`
		Token     string            `json:"token"`
		TokenType string            `json:"tokenType"`
		Metadata  map[string]string `json:"metadata"`
	}

	token := i.Token
	if token != "" {
		token = "REDACTED"
	}

	return json.Marshal(&safeIdentity{
		Subject:   i.Subject,
		Name:      i.Name,
		Email:     i.Email,
		Groups:    i.Groups,
		Claims:    i.Claims,
		Token:     token,
		TokenType: i.TokenType,
		Metadata:  i.Metadata,
	})
}
