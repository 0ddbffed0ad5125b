package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filmgrid/enrich-cli/internal/model"
)

// memPersister is an in-memory Persister for tests.
type memPersister struct {
	mu      sync.Mutex
	entries map[string]model.CacheEntry
	getErr  error
	putErr  error
	gets    int
	puts    int
}

func newMemPersister() *memPersister {
	return &memPersister{entries: make(map[string]model.CacheEntry)}
}

func (p *memPersister) GetCacheEntry(_ context.Context, sourceID, entityKey string) (*model.CacheEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gets++
	if p.getErr != nil {
		return nil, p.getErr
	}
	e, ok := p.entries[sourceID+"|"+entityKey]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (p *memPersister) UpsertCacheEntry(_ context.Context, entry model.CacheEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.puts++
	if p.putErr != nil {
		return p.putErr
	}
	p.entries[entry.SourceID+"|"+entry.EntityKey] = entry
	return nil
}

func (p *memPersister) DeleteExpiredCacheEntries(_ context.Context, now time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := 0
	for k, e := range p.entries {
		if e.Expired(now) {
			delete(p.entries, k)
			removed++
		}
	}
	return removed, nil
}

func TestCachePutGet(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := New(nil).WithNow(func() time.Time { return now })
	ctx := context.Background()

	_, ok := c.Get(ctx, "tmdb", "film:tt1")
	assert.False(t, ok)

	c.Put(ctx, "tmdb", "film:tt1", []byte(`[{"field":"director"}]`), time.Hour)

	payload, ok := c.Get(ctx, "tmdb", "film:tt1")
	require.True(t, ok)
	assert.Equal(t, []byte(`[{"field":"director"}]`), payload)

	// same entity under a different source is a separate entry
	_, ok = c.Get(ctx, "omdb", "film:tt1")
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCacheExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := New(nil).WithNow(func() time.Time { return now })
	ctx := context.Background()

	c.Put(ctx, "tmdb", "film:tt1", []byte("x"), time.Hour)

	now = base.Add(59 * time.Minute)
	_, ok := c.Get(ctx, "tmdb", "film:tt1")
	assert.True(t, ok)

	// exactly at expiry is a miss, and the entry is lazily evicted
	now = base.Add(time.Hour)
	_, ok = c.Get(ctx, "tmdb", "film:tt1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheWriteThrough(t *testing.T) {
	p := newMemPersister()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(p).WithNow(func() time.Time { return base })
	ctx := context.Background()

	c.Put(ctx, "tmdb", "film:tt1", []byte("x"), time.Hour)
	assert.Equal(t, 1, p.puts)

	// a second cache instance sharing the persister sees the entry
	c2 := New(p).WithNow(func() time.Time { return base })
	payload, ok := c2.Get(ctx, "tmdb", "film:tt1")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), payload)
}

func TestCachePersistErrorsSwallowed(t *testing.T) {
	p := newMemPersister()
	p.putErr = eris.New("disk full")
	p.getErr = eris.New("disk on fire")
	c := New(p)
	ctx := context.Background()

	// neither write nor read errors surface to the caller
	c.Put(ctx, "tmdb", "film:tt1", []byte("x"), time.Hour)
	payload, ok := c.Get(ctx, "tmdb", "film:tt1")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), payload)

	_, ok = c.Get(ctx, "omdb", "film:tt2")
	assert.False(t, ok)
}

func TestCacheSweep(t *testing.T) {
	p := newMemPersister()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c := New(p).WithNow(func() time.Time { return now })
	ctx := context.Background()

	c.Put(ctx, "tmdb", "film:tt1", []byte("a"), time.Hour)
	c.Put(ctx, "omdb", "film:tt1", []byte("b"), 3*time.Hour)

	now = base.Add(2 * time.Hour)
	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	// the expired entry is removed from both layers
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(ctx, "omdb", "film:tt1")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(ctx, "tmdb", "film:tt1", []byte("x"), time.Hour)
				c.Get(ctx, "tmdb", "film:tt1")
			}
		}()
	}
	wg.Wait()

	_, ok := c.Get(ctx, "tmdb", "film:tt1")
	assert.True(t, ok)
}
