package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/theRealMarkCastillo/whisperengine/core"
)

// RetrievalCache is a read-through, time-bounded cache for retrieval
// results. It is never the source of truth: entries expire on a short
// TTL and every write for an owner invalidates that owner's entries,
// so the active/superseded invariant is only ever read from the store.
type RetrievalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	// generations buckets cache keys per owner. Bumping an owner's
	// generation orphans all their entries; ristretto evicts the
	// orphans on its own.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewRetrievalCache creates a cache with the given TTL. A zero TTL
// returns nil, disabling caching at every call site.
func NewRetrievalCache(ttl time.Duration) (*RetrievalCache, error) {
	if ttl <= 0 {
		return nil, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}
	return &RetrievalCache{
		cache:       cache,
		ttl:         ttl,
		generations: make(map[string]uint64),
	}, nil
}

func (c *RetrievalCache) key(owner, query string, hints core.Hints) string {
	c.mu.Lock()
	gen := c.generations[owner]
	c.mu.Unlock()
	return fmt.Sprintf("%d|%s|%t|%s|%s", gen, owner, hints.PreferRecent, hints.TopicFilter, query)
}

// Get returns a cached result for (owner, query, hints).
func (c *RetrievalCache) Get(owner, query string, hints core.Hints) (RetrievalResult, bool) {
	if c == nil {
		return RetrievalResult{}, false
	}
	value, ok := c.cache.Get(c.key(owner, query, hints))
	if !ok {
		return RetrievalResult{}, false
	}
	result, ok := value.(RetrievalResult)
	return result, ok
}

// Set stores a result. Cost is the record count, so large results
// evict before small ones.
func (c *RetrievalCache) Set(owner, query string, hints core.Hints, result RetrievalResult) {
	if c == nil {
		return
	}
	cost := int64(len(result.Records))
	if cost == 0 {
		cost = 1
	}
	c.cache.SetWithTTL(c.key(owner, query, hints), result, cost, c.ttl)
}

// Invalidate drops all cached results for the owner. Called after any
// memory write for that owner.
func (c *RetrievalCache) Invalidate(owner string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.generations[owner]++
	c.mu.Unlock()
}

// Close releases cache resources.
func (c *RetrievalCache) Close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
