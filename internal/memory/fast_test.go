package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacts/internal/config"
	"pacts/internal/types"
)

func TestMemTierTTL(t *testing.T) {
	tier := NewMemTier()
	ctx := context.Background()
	key := types.NewCacheKey("https://a.example.com", "Search", types.ActionFill)
	entry := types.CacheEntry{Key: key, Selector: "#q", Strategy: types.StrategyIDClass}

	tier.Set(ctx, entry, 50*time.Millisecond)
	got, ok := tier.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "#q", got.Selector)

	time.Sleep(60 * time.Millisecond)
	_, ok = tier.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisTierRoundTrip(t *testing.T) {
	srv := miniredis.RunT(t)
	tier := NewRedisTier(srv.Addr())
	ctx := context.Background()

	key := types.NewCacheKey("https://a.example.com", "Search", types.ActionFill)
	entry := types.CacheEntry{Key: key, Selector: `[aria-label="Search"]`, Strategy: types.StrategyAriaLabel, Score: 0.98, Stable: true}

	tier.Set(ctx, entry, time.Minute)
	got, ok := tier.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, entry.Selector, got.Selector)
	assert.Equal(t, entry.Strategy, got.Strategy)

	tier.Delete(ctx, key)
	_, ok = tier.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisTierFlushAndCorruptEntry(t *testing.T) {
	srv := miniredis.RunT(t)
	tier := NewRedisTier(srv.Addr())
	ctx := context.Background()

	key := types.NewCacheKey("https://a.example.com", "Search", types.ActionFill)
	tier.Set(ctx, types.CacheEntry{Key: key, Selector: "#q"}, time.Minute)

	// Corrupt payloads degrade to a miss and self-clean.
	require.NoError(t, srv.Set(fastKeyPrefix+key.String(), "{not json"))
	_, ok := tier.Get(ctx, key)
	assert.False(t, ok)

	tier.Set(ctx, types.CacheEntry{Key: key, Selector: "#q"}, time.Minute)
	tier.Flush(ctx)
	_, ok = tier.Get(ctx, key)
	assert.False(t, ok)
}

func TestCacheWithRedisFastTier(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default().Cache
	cfg.RedisAddr = srv.Addr()
	cache := NewCache(store, cfg)
	ctx := context.Background()

	key := types.NewCacheKey("https://app.example.com/cases", "Subject", types.ActionFill)
	require.NoError(t, cache.Admit(ctx, key, stableRecord(`[aria-label="Subject"]`, 0.98, types.StrategyAriaLabel), "fp"))

	entry, ok, err := cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[aria-label="Subject"]`, entry.Selector)

	// Fast tier loss is only a latency event.
	srv.FlushAll()
	entry, ok, err = cache.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[aria-label="Subject"]`, entry.Selector)
}
