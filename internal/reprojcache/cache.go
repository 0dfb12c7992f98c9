// Package reprojcache provides an in-memory LRU cache for reprojected
// composite channel arrays, keyed by a deterministic fingerprint of their
// source paths and processing budget.
//
// Reprojection is the most expensive step in the composite pipeline: load
// → downscale → mosaic → reproject. Caching its output lets a stretch-only
// parameter change (the most common follow-up request) skip straight to
// rendering instead of repeating minutes of work.
package reprojcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/stsci-ingest/engine/pkg/types"
)

// Config controls cache capacity and freshness.
type Config struct {
	TTL        time.Duration
	MaxEntries int
	MaxBytes   int64
}

// DefaultConfig returns the package defaults (10 minute TTL, 3 entries,
// 512MB budget), matching the original composite cache's defaults.
func DefaultConfig() *Config {
	return &Config{
		TTL:        10 * time.Minute,
		MaxEntries: 3,
		MaxBytes:   512 * 1024 * 1024,
	}
}

type entry struct {
	key       string
	channels  map[string][]byte
	bytes     int64
	createdAt time.Time
	element   *list.Element
}

// cacheName identifies this cache to a types.MetricsCollector.
const cacheName = "reprojection"

// Cache is a thread-safe LRU cache of reprojected channel arrays.
type Cache struct {
	mu        sync.Mutex
	config    *Config
	entries   map[string]*entry
	evictList *list.List
	stats     types.CacheStats
	metrics   types.MetricsCollector
}

// New creates a Cache. A nil config uses DefaultConfig.
func New(config *Config) *Cache {
	if config == nil {
		config = DefaultConfig()
	}
	return &Cache{
		config:    config,
		entries:   make(map[string]*entry),
		evictList: list.New(),
		stats:     types.CacheStats{Capacity: config.MaxBytes},
	}
}

// SetMetrics configures the collector that cache hit/miss counts and size
// are recorded into. A nil collector (the default) disables metrics
// entirely.
func (c *Cache) SetMetrics(metrics types.MetricsCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = metrics
}

// MakeKey builds a deterministic cache key from RGB channel paths and the
// processing budget that produced them.
func MakeKey(redPaths, greenPaths, bluePaths []string, inputBudget int64) string {
	return fingerprint(map[string]interface{}{
		"red":    sortedCopy(redPaths),
		"green":  sortedCopy(greenPaths),
		"blue":   sortedCopy(bluePaths),
		"budget": inputBudget,
	})
}

// MakeKeyNChannel builds a deterministic cache key for an arbitrary number
// of channels.
func MakeKeyNChannel(channelPaths [][]string, inputBudget int64) string {
	sorted := make([][]string, len(channelPaths))
	for i, paths := range channelPaths {
		sorted[i] = sortedCopy(paths)
	}
	return fingerprint(map[string]interface{}{
		"channels": sorted,
		"budget":   inputBudget,
	})
}

func sortedCopy(paths []string) []string {
	cp := make([]string, len(paths))
	copy(cp, paths)
	sort.Strings(cp)
	return cp
}

func fingerprint(payload map[string]interface{}) string {
	// json.Marshal sorts map keys, matching json.dumps(sort_keys=True).
	b, err := json.Marshal(payload)
	if err != nil {
		panic(err) // payload is always a plain map of strings/slices/ints
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached channel arrays, or nil on miss or expiry.
func (c *Cache) Get(key string) (map[string][]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		c.updateHitRateLocked()
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(cacheName, 0)
		}
		return nil, false
	}

	if c.config.TTL > 0 && time.Since(e.createdAt) > c.config.TTL {
		c.removeLocked(key)
		c.stats.Misses++
		c.updateHitRateLocked()
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(cacheName, 0)
		}
		return nil, false
	}

	c.evictList.MoveToFront(e.element)
	c.stats.Hits++
	c.updateHitRateLocked()
	if c.metrics != nil {
		c.metrics.RecordCacheHit(cacheName, e.bytes)
	}
	return e.channels, true
}

// Put stores reprojected channel arrays, evicting expired and LRU entries
// as needed to stay within the byte and entry-count budgets. An entry
// larger than MaxBytes on its own is skipped entirely.
func (c *Cache) Put(key string, channels map[string][]byte) {
	var entryBytes int64
	for _, v := range channels {
		entryBytes += int64(len(v))
	}
	if entryBytes > c.config.MaxBytes {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()

	for c.totalBytesLocked()+entryBytes > c.config.MaxBytes && c.evictList.Len() > 0 {
		c.evictOldestLocked()
	}
	for len(c.entries) >= c.config.MaxEntries && c.evictList.Len() > 0 {
		c.evictOldestLocked()
	}

	if existing, ok := c.entries[key]; ok {
		c.evictList.Remove(existing.element)
	}

	el := c.evictList.PushFront(key)
	c.entries[key] = &entry{
		key:       key,
		channels:  channels,
		bytes:     entryBytes,
		createdAt: time.Now(),
		element:   el,
	}
	if c.metrics != nil {
		c.metrics.UpdateCacheSize(cacheName, c.totalBytesLocked())
	}
}

// Size returns the total bytes currently cached.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytesLocked()
}

// Stats returns a snapshot of cache statistics.
func (c *Cache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.totalBytesLocked()
	if c.config.MaxBytes > 0 {
		stats.Utilization = float64(stats.Size) / float64(c.config.MaxBytes)
	}
	return stats
}

func (c *Cache) totalBytesLocked() int64 {
	var total int64
	for _, e := range c.entries {
		total += e.bytes
	}
	return total
}

func (c *Cache) evictExpiredLocked() {
	if c.config.TTL <= 0 {
		return
	}
	var expired []string
	for key, e := range c.entries {
		if time.Since(e.createdAt) > c.config.TTL {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeLocked(key)
	}
}

func (c *Cache) evictOldestLocked() {
	el := c.evictList.Back()
	if el == nil {
		return
	}
	c.removeLocked(el.Value.(string))
}

func (c *Cache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.evictList.Remove(e.element)
	delete(c.entries, key)
	c.stats.Evictions++
}

func (c *Cache) updateHitRateLocked() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
