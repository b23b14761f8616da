package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCacheRoundTrip(t *testing.T) {
	cache := NewLRUCache(10, time.Minute)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)

	snapshot := snapshotWith(1, map[string]OrgEntitlement{
		"crm": {OrganizationID: 1, ModuleKey: "crm", Status: StatusEnabled},
	}, nil)
	cache.Set(ctx, 1, snapshot)

	got, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, StatusEnabled, got.Modules["crm"].Status)

	cache.Invalidate(ctx, 1)
	_, ok = cache.Get(ctx, 1)
	assert.False(t, ok)
}

func TestRedisCacheRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)

	cache, err := NewRedisCache(server.Addr(), "", time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	_, ok := cache.Get(ctx, 7)
	assert.False(t, ok)

	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	snapshot := snapshotWith(7, map[string]OrgEntitlement{
		"finance": {OrganizationID: 7, ModuleKey: "finance", Status: StatusTrial, TrialExpiresAt: &expiry},
	}, map[string]bool{"ledger": false})
	cache.Set(ctx, 7, snapshot)

	got, ok := cache.Get(ctx, 7)
	require.True(t, ok)
	assert.Equal(t, StatusTrial, got.Modules["finance"].Status)
	require.NotNil(t, got.Modules["finance"].TrialExpiresAt)
	assert.True(t, expiry.Equal(*got.Modules["finance"].TrialExpiresAt))
	assert.False(t, got.Submodules["ledger"])

	cache.Invalidate(ctx, 7)
	_, ok = cache.Get(ctx, 7)
	assert.False(t, ok)
}

func TestRedisCacheExpires(t *testing.T) {
	server := miniredis.RunT(t)

	cache, err := NewRedisCache(server.Addr(), "", time.Second)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, 3, snapshotWith(3, nil, nil))

	_, ok := cache.Get(ctx, 3)
	require.True(t, ok)

	server.FastForward(2 * time.Second)
	_, ok = cache.Get(ctx, 3)
	assert.False(t, ok)
}

func TestRedisCacheKeysAreScopedPerOrg(t *testing.T) {
	server := miniredis.RunT(t)

	cache, err := NewRedisCache(server.Addr(), "", time.Minute)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, 1, snapshotWith(1, nil, nil))
	cache.Set(ctx, 2, snapshotWith(2, nil, nil))

	cache.Invalidate(ctx, 1)

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)
	got, ok := cache.Get(ctx, 2)
	require.True(t, ok)
	assert.Equal(t, int64(2), got.OrganizationID)
}
