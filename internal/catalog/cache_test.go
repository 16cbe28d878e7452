package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheFetchJSONLoadsOnce(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "items", "GOOD", "pvc")
	require.NoError(t, err)
	require.Equal(t, "catalog:items:GOOD:pvc:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return []string{"a", "b"}, nil
	}
	var first, second []string
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
}

func TestCacheBumpOrphansOldKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	before, err := cache.BuildKey(ctx, "items")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "items")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Equal(t, "catalog:items:v2", after)
}

func TestCacheLoaderErrorIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	var dest []string
	err := cache.FetchJSON(ctx, "catalog:k", &dest, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	require.False(t, mr.Exists("catalog:k"))
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "items", "x")
	require.NoError(t, err)
	require.Equal(t, "catalog:items:x", key)
	var dest int
	require.NoError(t, cache.FetchJSON(ctx, key, &dest, func(context.Context) (any, error) { return 7, nil }))
	require.Equal(t, 7, dest)
	require.NoError(t, cache.Bump(ctx))
}
