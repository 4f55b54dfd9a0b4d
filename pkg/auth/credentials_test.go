package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

func TestPasswordVerifier_Success(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(5, time.Minute)
	require.NoError(t, store.CreateUser("alice", "Alice", "correct-horse"))

	v := NewPasswordVerifier(store)
	identity, err := v.Authenticate(context.Background(), Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Subject)
}

func TestPasswordVerifier_WrongPassword(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(5, time.Minute)
	require.NoError(t, store.CreateUser("alice", "Alice", "correct-horse"))

	v := NewPasswordVerifier(store)
	_, err := v.Authenticate(context.Background(), Credentials{Username: "alice", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, mcperrors.IsAuthFailed(err))
}

func TestPasswordVerifier_UnknownUser(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(5, time.Minute)
	v := NewPasswordVerifier(store)
	_, err := v.Authenticate(context.Background(), Credentials{Username: "nobody", Password: "x"})
	require.Error(t, err)
	assert.True(t, mcperrors.IsAuthFailed(err))
}

func TestPasswordVerifier_DisabledAccount(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(5, time.Minute)
	require.NoError(t, store.CreateUser("alice", "Alice", "correct-horse"))
	require.NoError(t, store.DisableUser("alice"))

	v := NewPasswordVerifier(store)
	_, err := v.Authenticate(context.Background(), Credentials{Username: "alice", Password: "correct-horse"})
	require.Error(t, err)
}

func TestCredentialStore_DuplicateUser(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(5, time.Minute)
	require.NoError(t, store.CreateUser("alice", "Alice", "pw"))
	err := store.CreateUser("alice", "Alice Again", "pw2")
	require.Error(t, err)
}

func TestCredentialStore_RateLimit(t *testing.T) {
	t.Parallel()
	store := NewCredentialStore(2, time.Hour)
	require.NoError(t, store.CreateUser("bob", "Bob", "pw"))
	v := NewPasswordVerifier(store)

	// burst of 2 allowed even with wrong password, third is rate limited.
	_, err1 := v.Authenticate(context.Background(), Credentials{Username: "bob", Password: "wrong"})
	_, err2 := v.Authenticate(context.Background(), Credentials{Username: "bob", Password: "wrong"})
	_, err3 := v.Authenticate(context.Background(), Credentials{Username: "bob", Password: "wrong"})
	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.Error(t, err3)
	assert.Contains(t, err3.Error(), "rate limit")
}
