package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousVerifier(t *testing.T) {
	t.Parallel()
	v := NewAnonymousVerifier()
	identity, err := v.Authenticate(context.Background(), Credentials{})
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "anonymous", identity.Subject)
	assert.Equal(t, "anonymous@localhost", identity.Email)
	assert.Equal(t, "anonymous", identity.Claims["sub"])
}

func TestLocalVerifier(t *testing.T) {
	t.Parallel()
	v := NewLocalVerifier()

	identity, err := v.Authenticate(context.Background(), Credentials{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
	assert.Equal(t, "alice", identity.Claims["sub"])

	_, err = v.Authenticate(context.Background(), Credentials{})
	assert.Error(t, err)
}
