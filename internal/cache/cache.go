// Package cache provides the TTL response cache for adapter payloads,
// keyed by (source, entity). A memory layer fronts an optional persistent
// layer; expired entries are never served and are evicted lazily or by
// Sweep.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// Persister is the slice of the repository the cache writes through to.
// A nil persister keeps the cache memory-only.
type Persister interface {
	GetCacheEntry(ctx context.Context, sourceID, entityKey string) (*model.CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, entry model.CacheEntry) error
	DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int, error)
}

type cacheKey struct {
	sourceID  string
	entityKey string
}

// Cache is safe for concurrent use across all entities resolving in a
// batch.
type Cache struct {
	mu        sync.RWMutex
	entries   map[cacheKey]model.CacheEntry
	persister Persister
	now       func() time.Time

	hits   int64
	misses int64
}

// New creates a cache. persister may be nil.
func New(persister Persister) *Cache {
	return &Cache{
		entries:   make(map[cacheKey]model.CacheEntry),
		persister: persister,
		now:       time.Now,
	}
}

// WithNow sets an injectable clock for deterministic tests.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached payload for (source, entity), or a miss. An
// entry past its expiry is always a miss and is evicted opportunistically.
func (c *Cache) Get(ctx context.Context, sourceID, entityKey string) ([]byte, bool) {
	k := cacheKey{sourceID, entityKey}
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[k]
	c.mu.RUnlock()

	if ok {
		if entry.Expired(now) {
			c.mu.Lock()
			// Re-check under the write lock in case a fresh Put raced.
			if cur, still := c.entries[k]; still && cur.Expired(now) {
				delete(c.entries, k)
			}
			c.misses++
			c.mu.Unlock()
			return nil, false
		}
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.Payload, true
	}

	// Fall through to the persistent layer.
	if c.persister != nil {
		persisted, err := c.persister.GetCacheEntry(ctx, sourceID, entityKey)
		if err != nil {
			zap.L().Warn("cache: persistent read failed",
				zap.String("source", sourceID),
				zap.String("entity", entityKey),
				zap.Error(err),
			)
		} else if persisted != nil && !persisted.Expired(now) {
			c.mu.Lock()
			c.entries[k] = *persisted
			c.hits++
			c.mu.Unlock()
			return persisted.Payload, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// Put stores a payload with the given TTL. Persistence errors are logged
// and swallowed: a cache-write failure never fails the resolution that
// produced the payload.
func (c *Cache) Put(ctx context.Context, sourceID, entityKey string, payload []byte, ttl time.Duration) {
	now := c.now()
	entry := model.CacheEntry{
		SourceID:  sourceID,
		EntityKey: entityKey,
		Payload:   payload,
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	c.mu.Lock()
	c.entries[cacheKey{sourceID, entityKey}] = entry
	c.mu.Unlock()

	if c.persister != nil {
		if err := c.persister.UpsertCacheEntry(ctx, entry); err != nil {
			zap.L().Warn("cache: persistent write failed",
				zap.String("source", sourceID),
				zap.String("entity", entityKey),
				zap.Error(err),
			)
		}
	}
}

// Sweep purges expired entries from both layers and returns how many
// were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for k, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if c.persister != nil {
		n, err := c.persister.DeleteExpiredCacheEntries(ctx, now)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

// Len returns the number of in-memory entries, including any not yet
// lazily evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
