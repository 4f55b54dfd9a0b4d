package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityContextKey is the context key under which an authenticated
// Identity is stored. An empty struct type avoids collisions with keys
// defined by other packages.
type IdentityContextKey struct{}

// ClaimsContextKey is a legacy key retained for verifiers that only have
// claims available (no constructed Identity yet); claimsToIdentity bridges
// the two.
type ClaimsContextKey struct{}

// WithIdentity stores identity in ctx. A nil identity is a no-op so callers
// can pass a possibly-absent identity without branching.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, IdentityContextKey{}, identity)
}

// IdentityFromContext retrieves the Identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey{}).(*Identity)
	return identity, ok
}

// GetClaimsFromContext returns the claims carried by the context's Identity,
// for authorizers that consult raw claims (e.g. the cedar policy authorizer).
func GetClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	if identity, ok := IdentityFromContext(ctx); ok && identity != nil && identity.Claims != nil {
		return jwt.MapClaims(identity.Claims), true
	}
	return nil, false
}

// claimsToIdentity converts a claims bag into an Identity. It requires a
// non-empty 'sub' claim per OIDC Core 1.0 section 5.1; BearerVerifier relies
// on this to build the principal reported to the rbac store.
//
// Groups is intentionally left unpopulated: group claim names vary by
// provider ("groups", "roles", "cognito:groups"), so callers that need
// groups must read them from Claims directly.
func claimsToIdentity(claims jwt.MapClaims, token string) (*Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("missing or invalid 'sub' claim (required by OIDC Core 1.0 section 5.1)")
	}

	identity := &Identity{
		Subject:   sub,
		Claims:    claims,
		Token:     token,
		TokenType: "Bearer",
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	}
	return identity, nil
}
