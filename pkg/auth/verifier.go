package auth

import (
	"context"
	"time"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// Credentials is the transport-agnostic input to Verifier.Authenticate. A
// session.authenticate request carries one populated field depending on
// the verifier the session is configured with; the rest are left zero.
type Credentials struct {
	// Username/Password authenticate against a CredentialStore.
	Username string
	Password string

	// Token authenticates a bearer-token verifier.
	Token string
}

// Verifier authenticates Credentials into an Identity. Implementations
// never panic on malformed input; every failure is reported through err.
type Verifier interface {
	// Authenticate verifies credentials and returns the resulting
	// principal, or a *errors.Error of type ErrAuthFailed.
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}

// AnonymousVerifier authenticates every attempt as a single fixed
// identity. It exists for local development and test harnesses where
// authorization policies still need a principal to evaluate against.
type AnonymousVerifier struct{}

// NewAnonymousVerifier constructs an AnonymousVerifier.
func NewAnonymousVerifier() *AnonymousVerifier { return &AnonymousVerifier{} }

// Authenticate always succeeds, returning the "anonymous" principal.
func (*AnonymousVerifier) Authenticate(_ context.Context, _ Credentials) (*Identity, error) {
	now := time.Now().Unix()
	claims := map[string]any{
		"sub":   "anonymous",
		"iss":   "mcpruntime-local",
		"aud":   "mcpruntime",
		"iat":   now,
		"email": "anonymous@localhost",
		"name":  "Anonymous User",
	}
	return &Identity{
		Subject:   "anonymous",
		Name:      "Anonymous User",
		Email:     "anonymous@localhost",
		Claims:    claims,
		TokenType: "anonymous",
	}, nil
}

// LocalVerifier authenticates any Username as a local principal without
// checking a password. It is a development convenience, never suitable
// for a production deployment of the runtime.
type LocalVerifier struct{}

// NewLocalVerifier constructs a LocalVerifier.
func NewLocalVerifier() *LocalVerifier { return &LocalVerifier{} }

// Authenticate accepts any non-empty username.
func (*LocalVerifier) Authenticate(_ context.Context, creds Credentials) (*Identity, error) {
	if creds.Username == "" {
		return nil, mcperrors.NewAuthFailedError("username required", nil)
	}
	now := time.Now().Unix()
	claims := map[string]any{
		"sub":  creds.Username,
		"iss":  "mcpruntime-local",
		"aud":  "mcpruntime",
		"iat":  now,
		"name": "Local User: " + creds.Username,
	}
	return &Identity{
		Subject:   creds.Username,
		Name:      "Local User: " + creds.Username,
		Claims:    claims,
		TokenType: "local",
	}, nil
}
