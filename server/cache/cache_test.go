package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type entry struct {
	Name  string  `json:"name"`
	Angle float64 `json:"angle"`
}

// exerciseCache runs the behavior shared by every backend.
func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()
	key := GenerateCacheKey("test", t.Name())

	var got entry
	assert.ErrorIs(t, c.Get(ctx, key, &got), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, key, entry{Name: "elbow", Angle: 152.5}))
	require.NoError(t, c.Get(ctx, key, &got))
	assert.Equal(t, entry{Name: "elbow", Angle: 152.5}, got)

	ok, err := c.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, key))
	ok, err = c.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := c.GetStats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Connected)
	assert.GreaterOrEqual(t, stats.Hits, int64(1))
	assert.GreaterOrEqual(t, stats.Misses, int64(1))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(10, time.Minute, zap.NewNop())
	defer c.Close()

	exerciseCache(t, c)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(10, time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.SetWithTTL(ctx, "k", 1, -time.Second))

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	ok, _ := c.Exists(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryCache(2, time.Minute, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "b", 2))
	time.Sleep(time.Millisecond)

	var v int
	require.NoError(t, c.Get(ctx, "a", &v))
	time.Sleep(time.Millisecond)
	require.NoError(t, c.Set(ctx, "c", 3))

	assert.NoError(t, c.Get(ctx, "a", &v))
	assert.ErrorIs(t, c.Get(ctx, "b", &v), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "c", &v))
	assert.Equal(t, 3, v)
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	c := NewMemoryCache(1, time.Minute, zap.NewNop())
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("PROBOWLER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PROBOWLER_TEST_REDIS_ADDR not set")
	}

	c, err := NewRedisCache(context.Background(), addr, "", 0, 2, time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
}

func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, GenerateCacheKey("a", "b"), GenerateCacheKey("a", "b"))
	assert.NotEqual(t, GenerateCacheKey("ab", "c"), GenerateCacheKey("a", "bc"))
	assert.Len(t, GenerateCacheKey("x"), 64)
}
