package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// BearerVerifier authenticates locally-issued HMAC-signed bearer tokens.
// Unlike an OIDC-federated deployment, the runtime is both issuer and
// verifier here, so there is no JWKS fetch: a single shared signing key
// is configured out of band.
type BearerVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewBearerVerifier builds a BearerVerifier that accepts tokens signed
// with secret, issued by issuer for audience.
func NewBearerVerifier(secret []byte, issuer, audience string) *BearerVerifier {
	return &BearerVerifier{secret: secret, issuer: issuer, audience: audience}
}

// IssueToken mints a bearer token for subject, valid for ttl. It exists
// so a credential store and a bearer verifier can share the runtime's
// self-issued token lifecycle without an external IdP.
func (v *BearerVerifier) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": v.issuer,
		"aud": v.audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(v.secret)
}

// Authenticate validates creds.Token's signature, issuer, audience, and
// expiry, then converts its claims into an Identity.
func (v *BearerVerifier) Authenticate(_ context.Context, creds Credentials) (*Identity, error) {
	if creds.Token == "" {
		return nil, mcperrors.NewAuthFailedError("no token presented", nil)
	}

	parsed, err := jwt.Parse(creds.Token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, mcperrors.NewAuthFailedError("unexpected signing method", nil)
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mcperrors.NewAuthFailedError("token validation failed", err)
	}
	if !parsed.Valid {
		return nil, mcperrors.NewAuthFailedError("invalid token", nil)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, mcperrors.NewAuthFailedError("unexpected claims type", nil)
	}

	identity, err := claimsToIdentity(claims, creds.Token)
	if err != nil {
		return nil, mcperrors.NewAuthFailedError(err.Error(), err)
	}
	return identity, nil
}
