package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisSnapshotStore.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	TTL         time.Duration
	DialTimeout time.Duration
}

const (
	defaultRedisKeyPrefix = "mcpruntime:session:"
	defaultSnapshotTTL    = 24 * time.Hour
	defaultDialTimeout    = 5 * time.Second
)

func (c RedisConfig) withDefaults() RedisConfig {
	if c.KeyPrefix == "" {
		c.KeyPrefix = defaultRedisKeyPrefix
	}
	if c.TTL <= 0 {
		c.TTL = defaultSnapshotTTL
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

// RedisSnapshotStore is a SnapshotStore backed by Redis, for deployments
// running more than one runtime instance behind the same session
// namespace or that want session context to survive a process restart.
type RedisSnapshotStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

type redisSnapshotRecord struct {
	Principal string         `json:"principal"`
	Version   int            `json:"version"`
	State     map[string]any `json:"state"`
}

// NewRedisSnapshotStore dials addr and verifies connectivity before
// returning, so a misconfigured store fails at startup rather than on
// the first session's first snapshot.
func NewRedisSnapshotStore(ctx context.Context, cfg RedisConfig) (*RedisSnapshotStore, error) {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	return newRedisSnapshotStoreWithClient(ctx, client, cfg)
}

// NewRedisSnapshotStoreWithClient wraps an already-constructed client,
// letting tests substitute a miniredis-backed client without dialing a
// real address.
func NewRedisSnapshotStoreWithClient(ctx context.Context, client *redis.Client, cfg RedisConfig) (*RedisSnapshotStore, error) {
	return newRedisSnapshotStoreWithClient(ctx, client, cfg.withDefaults())
}

func newRedisSnapshotStoreWithClient(ctx context.Context, client *redis.Client, cfg RedisConfig) (*RedisSnapshotStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("session: failed to connect to redis: %w", err)
	}
	return &RedisSnapshotStore{client: client, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (r *RedisSnapshotStore) key(sessionID string) string {
	return r.keyPrefix + sessionID
}

// Save implements SnapshotStore.
func (r *RedisSnapshotStore) Save(ctx context.Context, sessionID string, principal string, snap Snapshot) error {
	data, err := json.Marshal(redisSnapshotRecord{Principal: principal, Version: snap.Version, State: snap.State})
	if err != nil {
		return fmt.Errorf("session: failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: failed to save snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore.
func (r *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (Snapshot, string, bool, error) {
	data, err := r.client.Get(ctx, r.key(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Snapshot{}, "", false, nil
		}
		return Snapshot{}, "", false, fmt.Errorf("session: failed to load snapshot: %w", err)
	}
	var rec redisSnapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Snapshot{}, "", false, fmt.Errorf("session: failed to unmarshal snapshot: %w", err)
	}
	return Snapshot{Version: rec.Version, State: rec.State}, rec.Principal, true, nil
}

// Delete implements SnapshotStore.
func (r *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, r.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("session: failed to delete snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisSnapshotStore) Close() error {
	return r.client.Close()
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)
