package memory

import (
	"context"
	"time"

	"pacts/internal/config"
	"pacts/internal/logging"
	"pacts/internal/types"
)

// Cache is the dual-tier selector cache: a fast tier (in-process map or
// Redis) in front of the durable SQLite store. Admission policy lives
// here, not in the tiers.
type Cache struct {
	store   *Store
	fast    FastTier
	fastTTL time.Duration
	softTTL time.Duration
}

// NewCache wires the two tiers together. A Redis address in cfg selects
// the shared fast tier; otherwise the cache is process-local.
func NewCache(store *Store, cfg config.CacheConfig) *Cache {
	var fast FastTier
	if cfg.RedisAddr != "" {
		fast = NewRedisTier(cfg.RedisAddr)
	} else {
		fast = NewMemTier()
	}
	return newCacheWith(store, fast, cfg)
}

func newCacheWith(store *Store, fast FastTier, cfg config.CacheConfig) *Cache {
	fastTTL := time.Duration(cfg.FastTTLMs) * time.Millisecond
	if fastTTL <= 0 {
		fastTTL = 10 * time.Minute
	}
	softTTL := time.Duration(cfg.SoftTTLDays) * 24 * time.Hour
	if softTTL <= 0 {
		softTTL = 14 * 24 * time.Hour
	}
	return &Cache{store: store, fast: fast, fastTTL: fastTTL, softTTL: softTTL}
}

// Lookup resolves a key through both tiers. A durable hit is promoted
// into the fast tier. A stale-epoch fast entry is dropped.
func (c *Cache) Lookup(ctx context.Context, key types.CacheKey) (types.CacheEntry, bool, error) {
	epoch, err := c.store.Epoch()
	if err != nil {
		return types.CacheEntry{}, false, err
	}

	if entry, ok := c.fast.Get(ctx, key); ok {
		if entry.Epoch == epoch {
			logging.Get(logging.CategoryCache).Debug("fast hit %s -> %s", key, entry.Selector)
			return entry, true, nil
		}
		c.fast.Delete(ctx, key)
	}

	entry, ok, err := c.store.GetSelector(key)
	if err != nil || !ok {
		return types.CacheEntry{}, false, err
	}
	c.fast.Set(ctx, entry, c.fastTTL)
	logging.Get(logging.CategoryCache).Debug("durable hit %s -> %s", key, entry.Selector)
	return entry, true, nil
}

// Fresh reports whether an entry is inside its soft TTL. A stale entry is
// still usable but must be revalidated against the live DOM before trust.
func (c *Cache) Fresh(entry types.CacheEntry) bool {
	return time.Since(entry.LastOkAt) <= c.softTTL
}

// Admit applies the admission policy and stores the record when it
// qualifies:
//   - only stable selectors enter the cache
//   - ordinal selectors never enter, whatever their score
//   - an existing entry is overwritten only by a strictly greater score
func (c *Cache) Admit(ctx context.Context, key types.CacheKey, rec types.SelectorRecord, domHash string) error {
	if !rec.Stable || rec.Strategy == types.StrategyOrdinal {
		logging.Get(logging.CategoryCache).Debug("admission refused for %s (strategy=%s stable=%t)",
			key, rec.Strategy, rec.Stable)
		return nil
	}

	epoch, err := c.store.Epoch()
	if err != nil {
		return err
	}

	existing, ok, err := c.store.GetSelector(key)
	if err != nil {
		return err
	}
	if ok && rec.Score <= existing.Score {
		logging.Get(logging.CategoryCache).Debug("kept %s (score %.2f >= %.2f)",
			existing.Selector, existing.Score, rec.Score)
		return nil
	}

	now := time.Now().UTC()
	entry := types.CacheEntry{
		Key:             key,
		Selector:        rec.Selector,
		Strategy:        rec.Strategy,
		Score:           rec.Score,
		Stable:          true,
		Epoch:           epoch,
		CreatedAt:       now,
		LastOkAt:        now,
		DomHashSnapshot: domHash,
	}
	if ok {
		entry.CreatedAt = existing.CreatedAt
		entry.HitCount = existing.HitCount
		entry.MissCount = existing.MissCount
	}
	if err := c.store.PutSelector(entry); err != nil {
		return err
	}
	c.fast.Set(ctx, entry, c.fastTTL)
	logging.Get(logging.CategoryCache).Info("admitted %s -> %s (%s, %.2f)",
		key, rec.Selector, rec.Strategy, rec.Score)
	return nil
}

// RecordHit marks a successful reuse of a cached selector.
func (c *Cache) RecordHit(ctx context.Context, key types.CacheKey) {
	if err := c.store.TouchSelector(key, true); err != nil {
		logging.Get(logging.CategoryCache).Warn("record hit: %v", err)
	}
}

// Evict removes a selector from both tiers after a validation miss or a
// drift rejection.
func (c *Cache) Evict(ctx context.Context, key types.CacheKey, reason string) {
	if err := c.store.TouchSelector(key, false); err != nil {
		logging.Get(logging.CategoryCache).Warn("record miss: %v", err)
	}
	if err := c.store.DeleteSelector(key); err != nil {
		logging.Get(logging.CategoryCache).Warn("evict durable: %v", err)
	}
	c.fast.Delete(ctx, key)
	logging.Get(logging.CategoryCache).Info("evicted %s (%s)", key, reason)
}

// Purge clears selector rows (all of them when pattern is empty) plus the
// fast tier.
func (c *Cache) Purge(ctx context.Context, urlPattern string) (int64, error) {
	n, err := c.store.PurgeSelectors(urlPattern)
	if err != nil {
		return 0, err
	}
	c.fast.Flush(ctx)
	return n, nil
}

// BumpEpoch invalidates every cached selector at once.
func (c *Cache) BumpEpoch(ctx context.Context) (int, error) {
	epoch, err := c.store.BumpEpoch()
	if err != nil {
		return 0, err
	}
	c.fast.Flush(ctx)
	return epoch, nil
}
