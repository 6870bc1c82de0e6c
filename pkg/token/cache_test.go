package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaport-io/gangway/pkg/session"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(client), s
}

func TestCache_PutAndGet(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.Put(ctx, "spb", "sid-1", "signed.token.here", time.Hour))
	assert.True(t, s.Exists("sso_token:spb:sid-1"))

	entry, err := cache.Get(ctx, "spb", "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "signed.token.here", entry.Token)
	assert.Equal(t, session.StatusActive, entry.Status)
	assert.False(t, entry.Denied())

	_, err = cache.Get(ctx, "shti", "sid-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_PutSkipsExpiredSessions(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.Put(ctx, "spb", "sid-1", "tok", -time.Minute))
	assert.False(t, s.Exists("sso_token:spb:sid-1"))
}

func TestCache_MarkRevoked_KeepsTTL(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.Put(ctx, "spb", "sid-1", "tok", time.Hour))
	require.NoError(t, cache.MarkRevoked(ctx, "spb", "sid-1"))

	entry, err := cache.Get(ctx, "spb", "sid-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, entry.Status)
	assert.True(t, entry.Denied())
	assert.Equal(t, "tok", entry.Token)
	assert.Equal(t, time.Hour, s.TTL("sso_token:spb:sid-1"))
}

func TestCache_MarkRevoked_ColdKeyWritesDenyHint(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.MarkRevoked(ctx, "spb", "sid-2"))

	entry, err := cache.Get(ctx, "spb", "sid-2")
	require.NoError(t, err)
	assert.True(t, entry.Denied())
	assert.Equal(t, denyHintTTL, s.TTL("sso_token:spb:sid-2"))
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.Put(ctx, "spb", "sid-1", "tok", time.Hour))
	require.NoError(t, cache.Invalidate(ctx, "spb", "sid-1"))
	assert.False(t, s.Exists("sso_token:spb:sid-1"))

	// invalidating an absent key is fine
	require.NoError(t, cache.Invalidate(ctx, "spb", "sid-1"))
}

func TestCache_RefreshTTL(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, cache.Put(ctx, "spb", "sid-1", "tok", time.Hour))
	require.NoError(t, cache.RefreshTTL(ctx, "spb", "sid-1", 4*time.Hour))
	assert.Equal(t, 4*time.Hour, s.TTL("sso_token:spb:sid-1"))

	// a non-positive ttl drops the key instead
	require.NoError(t, cache.RefreshTTL(ctx, "spb", "sid-1", 0))
	assert.False(t, s.Exists("sso_token:spb:sid-1"))
}

func TestCache_GarbageEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	cache, s := newTestCache(t)

	require.NoError(t, s.Set("sso_token:spb:sid-1", "not-json"))
	_, err := cache.Get(ctx, "spb", "sid-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
