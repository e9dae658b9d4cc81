package score

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Cache memoizes per-query-per-entry weighted scores. Entries are keyed by
// (query fingerprint, entry id, coherency token). The coherency token is the
// entry's last_used_at at scoring time, so any metadata mutation makes the
// old key unreachable regardless of TTL. Ristretto bounds capacity and
// evicts under pressure.
type Cache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	mu      sync.Mutex
	byEntry map[string]map[string]struct{} // entry id -> live keys
}

// cachedScore carries the key material alongside the value so the eviction
// callbacks can prune the byEntry index; ristretto only hands back hashed
// keys.
type cachedScore struct {
	key     string
	entryID string
	value   float64
}

// NewCache creates a score cache holding up to capacity scores with the
// given TTL per entry.
func NewCache(capacity int64, ttl time.Duration) (*Cache, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	c := &Cache{
		ttl:     ttl,
		byEntry: make(map[string]map[string]struct{}),
	}
	// Scores leave ristretto three ways: evicted under pressure, expired
	// past TTL, or rejected at admission. All three must drop the index
	// entry too, or byEntry grows without bound.
	drop := func(item *ristretto.Item) {
		if cs, ok := item.Value.(cachedScore); ok {
			c.prune(cs.entryID, cs.key)
		}
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
		OnEvict:     drop,
		OnReject:    drop,
	})
	if err != nil {
		return nil, fmt.Errorf("create score cache: %w", err)
	}
	c.cache = rc
	return c, nil
}

func cacheKey(queryFP, entryID, coherency string) string {
	return queryFP + "\x1f" + entryID + "\x1f" + coherency
}

// Get returns a cached score for the exact (query, entry, coherency) triple.
// A changed coherency token misses by construction.
func (c *Cache) Get(queryFP, entryID, coherency string) (float64, bool) {
	v, ok := c.cache.Get(cacheKey(queryFP, entryID, coherency))
	if !ok {
		return 0, false
	}
	cs, ok := v.(cachedScore)
	if !ok {
		return 0, false
	}
	return cs.value, true
}

// Set stores a score with the cache TTL.
func (c *Cache) Set(queryFP, entryID, coherency string, value float64) {
	key := cacheKey(queryFP, entryID, coherency)

	c.mu.Lock()
	keys, ok := c.byEntry[entryID]
	if !ok {
		keys = make(map[string]struct{})
		c.byEntry[entryID] = keys
	}
	keys[key] = struct{}{}
	c.mu.Unlock()

	c.cache.SetWithTTL(key, cachedScore{key: key, entryID: entryID, value: value}, 1, c.ttl)
}

// Invalidate purges every cached score referencing the given entry. Called
// whenever entry metadata mutates.
func (c *Cache) Invalidate(entryID string) {
	c.mu.Lock()
	keys := c.byEntry[entryID]
	delete(c.byEntry, entryID)
	c.mu.Unlock()

	for key := range keys {
		c.cache.Del(key)
	}
}

// prune removes one key from the index, dropping the entry's bucket when
// it empties.
func (c *Cache) prune(entryID, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.byEntry[entryID]
	if keys == nil {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.byEntry, entryID)
	}
}

// indexSize reports how many keys the byEntry index currently tracks.
func (c *Cache) indexSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, keys := range c.byEntry {
		n += len(keys)
	}
	return n
}

// Wait blocks until pending writes are applied. Ristretto admits
// asynchronously; tests call this before asserting on Get.
func (c *Cache) Wait() {
	c.cache.Wait()
}

// Close releases the underlying cache.
func (c *Cache) Close() {
	c.cache.Close()
}
