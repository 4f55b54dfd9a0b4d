package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpruntime/core/pkg/auth"
	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/session"
	"github.com/mcpruntime/core/pkg/wire"
)

func TestNegotiateVersion_PicksCompatibleOffer(t *testing.T) {
	t.Parallel()
	agreed, err := NegotiateVersion([]wire.ProtocolVersion{{Major: 1, Minor: 3}})
	require.NoError(t, err)
	assert.Equal(t, wire.CurrentVersion, agreed)
}

func TestNegotiateVersion_NoCommonVersionFails(t *testing.T) {
	t.Parallel()
	_, err := NegotiateVersion([]wire.ProtocolVersion{{Major: 2, Minor: 0}})
	assert.True(t, mcperrors.IsVersionMismatch(err))
}

func TestAuthenticator_HandleHello_AdvancesToAuthenticating(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	a := NewAuthenticator(auth.NewAnonymousVerifier())

	_, err := a.HandleHello(sess, HelloPayload{SupportedVersions: []wire.ProtocolVersion{wire.CurrentVersion}})
	require.NoError(t, err)
	assert.Equal(t, session.StateAuthenticating, sess.State())
}

func TestAuthenticator_HandleAuthenticate_SucceedsAndActivatesSession(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	a := NewAuthenticator(auth.NewLocalVerifier())

	_, err := a.HandleHello(sess, HelloPayload{SupportedVersions: []wire.ProtocolVersion{wire.CurrentVersion}})
	require.NoError(t, err)

	require.NoError(t, a.HandleAuthenticate(context.Background(), sess, AuthenticatePayload{Username: "alice"}))
	assert.Equal(t, session.StateActive, sess.State())
	assert.Equal(t, "alice", sess.Principal())
}

func TestAuthenticator_HandleAuthenticate_FailureKeepsRetrying(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	a := NewAuthenticator(auth.NewLocalVerifier())

	_, err := a.HandleHello(sess, HelloPayload{SupportedVersions: []wire.ProtocolVersion{wire.CurrentVersion}})
	require.NoError(t, err)

	err = a.HandleAuthenticate(context.Background(), sess, AuthenticatePayload{Username: ""})
	assert.Error(t, err)
	assert.Equal(t, session.StateAuthenticating, sess.State())
}
