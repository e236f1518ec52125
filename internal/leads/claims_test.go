package leads

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisClaimStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	store := NewRedisClaimStore(client, time.Hour)
	ctx := context.Background()

	won, err := store.Claim(ctx, "t1:123@c.us")
	require.NoError(t, err)
	require.True(t, won)

	won, err = store.Claim(ctx, "t1:123@c.us")
	require.NoError(t, err)
	require.False(t, won)

	require.True(t, mr.Exists("lead-claim:t1:123@c.us"))
	require.Equal(t, time.Hour, mr.TTL("lead-claim:t1:123@c.us"))

	require.NoError(t, store.Release(ctx, "t1:123@c.us"))
	won, err = store.Claim(ctx, "t1:123@c.us")
	require.NoError(t, err)
	require.True(t, won)

	mr.FastForward(2 * time.Hour)
	won, err = store.Claim(ctx, "t1:123@c.us")
	require.NoError(t, err)
	require.True(t, won, "claim expires with its ttl")
}

func TestMemoryClaimStore(t *testing.T) {
	store := NewMemoryClaimStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	won, _ := store.Claim(ctx, "k")
	require.True(t, won)
	won, _ = store.Claim(ctx, "k")
	require.False(t, won)

	now = now.Add(time.Minute)
	won, _ = store.Claim(ctx, "k")
	require.True(t, won)

	require.NoError(t, store.Release(ctx, "k"))
	won, _ = store.Claim(ctx, "k")
	require.True(t, won)
}

func TestMemoryClaimStoreSweepsExpiredClaims(t *testing.T) {
	store := NewMemoryClaimStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		won, _ := store.Claim(ctx, key)
		require.True(t, won)
	}
	require.Len(t, store.claims, 3)

	now = now.Add(2 * time.Minute)
	won, _ := store.Claim(ctx, "d")
	require.True(t, won)
	require.Len(t, store.claims, 1, "expired claims are evicted")
	require.Contains(t, store.claims, "d")
}
