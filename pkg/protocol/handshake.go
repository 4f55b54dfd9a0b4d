package protocol

import (
	"context"

	"github.com/mcpruntime/core/pkg/auth"
	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/session"
	"github.com/mcpruntime/core/pkg/wire"
)

// HelloPayload is the body of a session.hello Request: the versions the
// client is willing to speak, offered most-preferred first.
type HelloPayload struct {
	SupportedVersions []wire.ProtocolVersion `json:"supported_versions"`
}

// HelloResult is the body of the Response to a successful session.hello.
type HelloResult struct {
	AgreedVersion wire.ProtocolVersion `json:"agreed_version"`
}

// NegotiateVersion returns CurrentVersion, the one version this runtime
// speaks, if any version in offered is Compatible with it (same major
// version), or VersionMismatch if none is.
func NegotiateVersion(offered []wire.ProtocolVersion) (wire.ProtocolVersion, error) {
	for _, v := range offered {
		if wire.CurrentVersion.Compatible(v) {
			return wire.CurrentVersion, nil
		}
	}
	return wire.ProtocolVersion{}, mcperrors.NewVersionMismatchError("no mutually supported protocol version", nil)
}

// AuthenticatePayload is the body of a session.authenticate Request.
type AuthenticatePayload struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Authenticator runs the handshake's authentication step: negotiate the
// protocol version, then verify credentials against the configured
// auth.Verifier, moving the session to StateActive on success.
type Authenticator struct {
	verifier auth.Verifier
}

// NewAuthenticator returns an Authenticator backed by verifier.
func NewAuthenticator(verifier auth.Verifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// HandleHello negotiates a protocol version for sess and advances it to
// StateNegotiating then StateAuthenticating on success.
func (a *Authenticator) HandleHello(sess *session.Session, payload HelloPayload) (HelloResult, error) {
	agreed, err := NegotiateVersion(payload.SupportedVersions)
	if err != nil {
		return HelloResult{}, err
	}
	if err := sess.TransitionTo(session.StateNegotiating); err != nil {
		return HelloResult{}, err
	}
	if err := sess.TransitionTo(session.StateAuthenticating); err != nil {
		return HelloResult{}, err
	}
	return HelloResult{AgreedVersion: agreed}, nil
}

// HandleAuthenticate verifies payload's credentials and, on success,
// advances sess to StateActive. On failure it records a retry and
// forces the session closed once the bounded retry count is exceeded.
func (a *Authenticator) HandleAuthenticate(ctx context.Context, sess *session.Session, payload AuthenticatePayload) error {
	identity, err := a.verifier.Authenticate(ctx, auth.Credentials{
		Username: payload.Username,
		Password: payload.Password,
		Token:    payload.Token,
	})
	if err != nil {
		if sess.RecordFailedAuth() {
			_ = sess.TransitionTo(session.StateClosed)
		}
		return err
	}
	return sess.Authenticate(identity.Subject)
}
