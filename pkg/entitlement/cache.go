package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores whole per-organization entitlement snapshots. Entries are
// replaced atomically; a reader racing an invalidation observes either the
// old snapshot or a miss, never a torn value. The cache is a rebuildable
// projection, not a source of truth.
type Cache interface {
	Get(ctx context.Context, orgID int64) (*Snapshot, bool)
	Set(ctx context.Context, orgID int64, snapshot *Snapshot)
	Invalidate(ctx context.Context, orgID int64)
}

// LRUCache is an in-process cache for single-instance deployments.
type LRUCache struct {
	lru *expirable.LRU[int64, *Snapshot]
}

// NewLRUCache creates an in-process snapshot cache.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{
		lru: expirable.NewLRU[int64, *Snapshot](size, nil, ttl),
	}
}

// Get returns the cached snapshot for an organization.
func (c *LRUCache) Get(_ context.Context, orgID int64) (*Snapshot, bool) {
	return c.lru.Get(orgID)
}

// Set stores a snapshot.
func (c *LRUCache) Set(_ context.Context, orgID int64, snapshot *Snapshot) {
	c.lru.Add(orgID, snapshot)
}

// Invalidate removes an organization's snapshot.
func (c *LRUCache) Invalidate(_ context.Context, orgID int64) {
	c.lru.Remove(orgID)
}

// RedisCache is a shared cache for multi-instance deployments, so an
// administrative entitlement change on one instance is visible to all.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{redis: client, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.redis.Close()
}

// Client exposes the underlying Redis client for health checks.
func (c *RedisCache) Client() *redis.Client {
	return c.redis
}

func (c *RedisCache) key(orgID int64) string {
	return fmt.Sprintf("entitlements:org:%d", orgID)
}

// Get returns the cached snapshot for an organization.
func (c *RedisCache) Get(ctx context.Context, orgID int64) (*Snapshot, bool) {
	cached, err := c.redis.Get(ctx, c.key(orgID)).Result()
	if err != nil {
		return nil, false
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(cached), &snapshot); err != nil {
		return nil, false
	}
	return &snapshot, true
}

// Set stores a snapshot.
func (c *RedisCache) Set(ctx context.Context, orgID int64, snapshot *Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	c.redis.Set(ctx, c.key(orgID), data, c.ttl)
}

// Invalidate removes an organization's snapshot.
func (c *RedisCache) Invalidate(ctx context.Context, orgID int64) {
	c.redis.Del(ctx, c.key(orgID))
}

// NoopCache disables caching; every resolution hits the store. Used in tests
// that assert on store access patterns.
type NoopCache struct{}

// Get always misses.
func (NoopCache) Get(context.Context, int64) (*Snapshot, bool) { return nil, false }

// Set discards the snapshot.
func (NoopCache) Set(context.Context, int64, *Snapshot) {}

// Invalidate does nothing.
func (NoopCache) Invalidate(context.Context, int64) {}
