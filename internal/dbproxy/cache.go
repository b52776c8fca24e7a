// Package dbproxy sits between game systems and the database: an LRU+TTL
// query cache in front of a primary/replica routed SQL proxy, mirroring
// the read-through/write-invalidate split of the teacher's
// infrastructure/cache and infrastructure/database packages.
package dbproxy

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// CachedResult is an opaque, cacheable query result. The proxy never
// inspects its contents; callers decode rows however they scan them.
type CachedResult struct {
	Columns []string
	Rows    [][]any
}

type cacheEntry struct {
	sql       string
	result    CachedResult
	expiresAt time.Time
}

// CacheConfig controls capacity and default freshness.
type CacheConfig struct {
	MaxEntries int
	DefaultTTL time.Duration
}

// DefaultCacheConfig returns production defaults: 10000 entries, 30s TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxEntries: 10000, DefaultTTL: 30 * time.Second}
}

// Cache is a thread-safe LRU+TTL hybrid keyed by resolved SQL text. A hit
// splices its entry to the front of the recency list; a hit whose TTL has
// elapsed is evicted and counted as a miss. Capacity is enforced by
// evicting the list's back (least recently used) entry.
//
// container/list is the one stdlib dependency in this package: none of
// the example repos' caches (the teacher's infrastructure/cache.Cache is
// a plain map+TTL with no recency ordering) implement LRU eviction order,
// so there's no third-party cache in the corpus to ground this on, and a
// doubly-linked list is exactly what LRU eviction needs.
type Cache struct {
	config CacheConfig

	mu      sync.Mutex
	items   map[string]*list.Element // sql -> element wrapping *cacheEntry
	order   *list.List               // front = most recently used
	hits    uint64
	misses  uint64
}

// NewCache constructs an empty cache from config, filling in defaults for
// zero-valued fields.
func NewCache(config CacheConfig) *Cache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultCacheConfig().DefaultTTL
	}
	return &Cache{
		config: config,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}
}

// Get returns the cached result for sql, if present and unexpired. A
// lookup bumps the entry to most-recently-used.
func (c *Cache) Get(sql string) (CachedResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[sql]
	if !ok {
		c.misses++
		return CachedResult{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if !entry.expiresAt.After(time.Now()) {
		c.removeElement(elem)
		c.misses++
		return CachedResult{}, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.result, true
}

// Put inserts or refreshes sql's cached result with ttl (or the cache's
// DefaultTTL if ttl <= 0), evicting the least-recently-used entry first
// if the cache is at capacity.
func (c *Cache) Put(sql string, result CachedResult, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)

	if elem, ok := c.items[sql]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.result = result
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	for len(c.items) >= c.config.MaxEntries {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}

	entry := &cacheEntry{sql: sql, result: result, expiresAt: expiresAt}
	elem := c.order.PushFront(entry)
	c.items[sql] = elem
}

// InvalidateByTable drops every cached entry whose SQL text mentions
// tableName, case-insensitively. This is deliberately over-eager: a
// substring match may evict entries that only happen to mention the
// table name in a literal or comment, trading a few extra cache misses
// for the guarantee that no stale row ever survives a matching write.
func (c *Cache) InvalidateByTable(tableName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	needle := strings.ToLower(tableName)
	var removed int

	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		entry := elem.Value.(*cacheEntry)
		if strings.Contains(strings.ToLower(entry.sql), needle) {
			c.removeElement(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// HitRate returns hits / (hits + misses), or 0 if nothing has been looked up.
func (c *Cache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

func (c *Cache) removeElement(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.sql)
	c.order.Remove(elem)
}
