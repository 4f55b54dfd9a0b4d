package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisSnapshotStore(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisSnapshotStoreWithClient(context.Background(), client, RedisConfig{KeyPrefix: "test:session:"})
	require.NoError(t, err)
	return store, mr
}

func TestRedisSnapshotStore_SaveAndLoadRoundTrips(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	snap := Snapshot{Version: 3, State: map[string]any{"cursor": "abc"}}
	require.NoError(t, store.Save(context.Background(), "sess-1", "alice", snap))

	loaded, principal, ok, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", principal)
	assert.Equal(t, 3, loaded.Version)
	assert.Equal(t, "abc", loaded.State["cursor"])
}

func TestRedisSnapshotStore_LoadMissingReturnsNotFound(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	_, _, ok, err := store.Load(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotStore_SaveOverwritesPrevious(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	require.NoError(t, store.Save(context.Background(), "sess-1", "alice", Snapshot{Version: 1, State: map[string]any{"x": 1}}))
	require.NoError(t, store.Save(context.Background(), "sess-1", "bob", Snapshot{Version: 2, State: map[string]any{"x": 2}}))

	loaded, principal, ok, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob", principal)
	assert.Equal(t, 2, loaded.Version)
}

func TestRedisSnapshotStore_Delete(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	require.NoError(t, store.Save(context.Background(), "sess-1", "alice", Snapshot{Version: 1, State: map[string]any{}}))
	require.NoError(t, store.Delete(context.Background(), "sess-1"))

	_, _, ok, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSnapshotStore_TTLExpiresEntry(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store, err := NewRedisSnapshotStoreWithClient(context.Background(), client, RedisConfig{KeyPrefix: "test:session:"})
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "sess-ttl", "alice", Snapshot{Version: 1, State: map[string]any{}}))
	mr.FastForward(defaultSnapshotTTL + time.Second)

	_, _, ok, err := store.Load(context.Background(), "sess-ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisSnapshotStore_ConnectionFailure(t *testing.T) {
	t.Parallel()
	_, err := NewRedisSnapshotStore(context.Background(), RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestManager_PersistAndResume(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	mgr := NewManager(ManagerConfig{}, nil)
	sess := mgr.Accept(newFakeTransport())
	_ = sess.transitionTo(StateNegotiating)
	_ = sess.transitionTo(StateAuthenticating)
	require.NoError(t, sess.authenticate("alice"))
	sess.Snapshot(map[string]any{"cursor": "page-2"})

	require.NoError(t, mgr.Persist(context.Background(), store, sess.ID()))

	resumed, found, err := mgr.Resume(context.Background(), store, sess.ID(), newFakeTransport())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "alice", resumed.Principal())

	snap, ok := resumed.Restore(1)
	require.True(t, ok)
	assert.Equal(t, "page-2", snap.State["cursor"])
}

func TestManager_ResumeUnknownSessionIDAcceptsFresh(t *testing.T) {
	t.Parallel()
	store, mr := newTestRedisSnapshotStore(t)
	defer mr.Close()

	mgr := NewManager(ManagerConfig{}, nil)
	resumed, found, err := mgr.Resume(context.Background(), store, "never-persisted", newFakeTransport())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, "", resumed.Principal())
}
