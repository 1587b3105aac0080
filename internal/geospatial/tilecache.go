package geospatial

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TileKey addresses one basemap tile.
type TileKey struct {
	Z, X, Y int
	Format  string
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d.%s", k.Z, k.X, k.Y, k.Format)
}

// TileCache is a concurrent-safe LRU cache of basemap tiles with TTL expiration.
type TileCache struct {
	mu         sync.Mutex
	entries    map[TileKey]*list.Element
	lru        *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry struct {
	key      TileKey
	tile     Tile
	storedAt time.Time
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Evictions  int64   `json:"evictions"`
	HitRate    float64 `json:"hit_rate"`
}

// NewTileCache creates a cache holding at most maxEntries tiles for ttl each. A
// non-positive ttl keeps tiles until they are evicted.
func NewTileCache(maxEntries int, ttl time.Duration) *TileCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &TileCache{
		entries:    make(map[TileKey]*list.Element, maxEntries),
		lru:        list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Get returns a cached tile. Expired tiles count as misses and are dropped.
func (c *TileCache) Get(key TileKey) (Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return Tile{}, false
	}
	e := el.Value.(*cacheEntry)
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.lru.Remove(el)
		delete(c.entries, key)
		c.misses.Add(1)
		return Tile{}, false
	}

	c.lru.MoveToFront(el)
	c.hits.Add(1)
	return e.tile, true
}

// Put stores a tile, evicting the least recently used one when full.
func (c *TileCache) Put(key TileKey, tile Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*cacheEntry)
		e.tile = tile
		e.storedAt = c.now()
		c.lru.MoveToFront(el)
		return
	}

	for c.lru.Len() >= c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, tile: tile, storedAt: c.now()})
}

// Len returns the number of cached tiles, expired or not.
func (c *TileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every tile. Counters are kept.
func (c *TileCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[TileKey]*list.Element, c.maxEntries)
	c.lru.Init()
}

// Stats returns cache performance statistics.
func (c *TileCache) Stats() CacheStats {
	entries := c.Len()
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:    entries,
		MaxEntries: c.maxEntries,
		Hits:       hits,
		Misses:     misses,
		Evictions:  c.evictions.Load(),
		HitRate:    hitRate,
	}
}
