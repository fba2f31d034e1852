package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pacts/internal/logging"
	"pacts/internal/types"
)

const fastKeyPrefix = "pacts:sel:"

// FastTier is the read-through hot cache in front of SQLite. It is purely
// an accelerator: losing it costs latency, never correctness.
type FastTier interface {
	Get(ctx context.Context, key types.CacheKey) (types.CacheEntry, bool)
	Set(ctx context.Context, entry types.CacheEntry, ttl time.Duration)
	Delete(ctx context.Context, key types.CacheKey)
	Flush(ctx context.Context)
}

// memTier is the in-process fast tier used when no Redis address is
// configured.
type memTier struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	entry   types.CacheEntry
	expires time.Time
}

// NewMemTier returns an in-memory fast tier.
func NewMemTier() FastTier {
	return &memTier{entries: map[string]memEntry{}}
}

func (m *memTier) Get(ctx context.Context, key types.CacheKey) (types.CacheEntry, bool) {
	m.mu.RLock()
	e, ok := m.entries[key.String()]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return types.CacheEntry{}, false
	}
	return e.entry, true
}

func (m *memTier) Set(ctx context.Context, entry types.CacheEntry, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key.String()] = memEntry{entry: entry, expires: time.Now().Add(ttl)}
}

func (m *memTier) Delete(ctx context.Context, key types.CacheKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key.String())
}

func (m *memTier) Flush(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[string]memEntry{}
}

// redisTier shares the fast cache across runner processes. Every error
// degrades to a miss; the durable tier is authoritative.
type redisTier struct {
	client *redis.Client
}

// NewRedisTier connects a Redis-backed fast tier.
func NewRedisTier(addr string) FastTier {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return &redisTier{client: client}
}

func (r *redisTier) Get(ctx context.Context, key types.CacheKey) (types.CacheEntry, bool) {
	raw, err := r.client.Get(ctx, fastKeyPrefix+key.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Get(logging.CategoryCache).Debug("redis get: %v", err)
		}
		return types.CacheEntry{}, false
	}
	var entry types.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logging.Get(logging.CategoryCache).Warn("corrupt fast-tier entry for %s: %v", key, err)
		r.Delete(ctx, key)
		return types.CacheEntry{}, false
	}
	return entry, true
}

func (r *redisTier) Set(ctx context.Context, entry types.CacheEntry, ttl time.Duration) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, fastKeyPrefix+entry.Key.String(), raw, ttl).Err(); err != nil {
		logging.Get(logging.CategoryCache).Debug("redis set: %v", err)
	}
}

func (r *redisTier) Delete(ctx context.Context, key types.CacheKey) {
	if err := r.client.Del(ctx, fastKeyPrefix+key.String()).Err(); err != nil {
		logging.Get(logging.CategoryCache).Debug("redis del: %v", err)
	}
}

func (r *redisTier) Flush(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, fastKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = r.client.Del(ctx, iter.Val()).Err()
	}
	if err := iter.Err(); err != nil {
		logging.Get(logging.CategoryCache).Debug("redis flush scan: %v", err)
	}
}
