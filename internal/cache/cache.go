// Package cache implements the C9 read-through cache fronting the
// durable store, grounded on the teacher's internal/rpc/cache.go
// (SHA-256 fingerprint keys, hit/miss counters, size-bounded eviction)
// generalized with a per-entry version counter (spec invariant 6) and a
// background memory/cache pressure monitor (spec §4.6) that evicts and
// publishes CACHE_CLEARED on the bus, rather than the teacher's simpler
// "invalidate everything on any write" strategy.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/taskcore/taskcore/internal/corelog"
	"github.com/taskcore/taskcore/internal/eventbus"
)

// defaultMaxEntries bounds cache size by entry count. The spec's config
// only names a byte budget (maxMemory) for the background pressure
// monitor's heap ratio; entry-count is an orthogonal bound the teacher's
// QueryCache also enforces (its maxSize), so it is kept as an
// independent constant rather than derived from maxMemory.
const defaultMaxEntries = 1000

type entry struct {
	value      any
	version    int64
	storedAt   time.Time
	lastAccess time.Time
}

// Config mirrors spec §4.6 / §6's cache section.
type Config struct {
	MaxMemoryBytes    int64
	CheckInterval     time.Duration
	PressureThreshold float64
	DebugMode         bool
	TTL               time.Duration
	MaxEntries        int
}

// Cache is the C9 keyed read-through cache. Keys are fingerprints of
// (operation, normalized arguments); values carry a version counter so
// a stale write can never shadow a newer committed one (spec invariant
// 6).
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cfg     Config
	logger  *corelog.Logger
	bus     *eventbus.Bus
	group   singleflight.Group

	hits   int64
	misses int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds a Cache and starts its background pressure monitor. Callers
// must call Close to stop the monitor goroutine.
func New(cfg Config, logger *corelog.Logger, bus *eventbus.Bus) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 60 * time.Second
	}
	if cfg.PressureThreshold <= 0 {
		cfg.PressureThreshold = 0.8
	}
	if logger == nil {
		logger = corelog.Nop()
	}
	c := &Cache{
		entries: make(map[string]*entry),
		cfg:     cfg,
		logger:  logger,
		bus:     bus,
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.monitor()
	return c
}

// Fingerprint returns the SHA-256 fingerprint of an operation and its
// normalized (JSON-marshaled) arguments, grounded on the teacher's
// QueryCache.MakeKey.
func Fingerprint(op string, args any) (string, error) {
	normalized, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte(":"))
	h.Write(normalized)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached value and its version for key, or ok=false if
// absent.
func (c *Cache) Get(key string) (any, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, 0, false
	}
	if c.cfg.TTL > 0 && time.Since(e.storedAt) > c.cfg.TTL {
		delete(c.entries, key)
		c.misses++
		return nil, 0, false
	}
	e.lastAccess = time.Now()
	c.hits++
	return e.value, e.version, true
}

// Set stores value under key with the given version. A Set with a
// version older than the entry currently stored is ignored, upholding
// invariant 6 against out-of-order concurrent writers.
func (c *Cache) Set(key string, value any, version int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok && existing.version > version {
		return
	}
	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	now := time.Now()
	c.entries[key] = &entry{value: value, version: version, storedAt: now, lastAccess: now}
}

// GetOrLoad returns the cached value for key if present, otherwise calls
// load exactly once across concurrent callers for the same key
// (golang.org/x/sync/singleflight) and caches its result.
func (c *Cache) GetOrLoad(ctx context.Context, key string, version int64, load func(ctx context.Context) (any, error)) (any, error) {
	if v, _, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if cached, _, ok := c.Get(key); ok {
			return cached, nil
		}
		value, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, value, version)
		return value, nil
	})
	return v, err
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear empties the cache entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// Stats reports cache size and hit/miss counters.
type Stats struct {
	Entries  int
	MaxSize  int
	Hits     int64
	Misses   int64
	HitRatio float64
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	var ratio float64
	if total > 0 {
		ratio = float64(c.hits) / float64(total)
	}
	return Stats{Entries: len(c.entries), MaxSize: c.cfg.MaxEntries, Hits: c.hits, Misses: c.misses, HitRatio: ratio}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for key, e := range c.entries {
		if first || e.lastAccess.Before(oldestTime) {
			oldestKey, oldestTime, first = key, e.lastAccess, false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Close stops the background pressure monitor.
func (c *Cache) Close() {
	close(c.stop)
	c.wg.Wait()
}
