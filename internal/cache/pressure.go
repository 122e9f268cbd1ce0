package cache

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/taskcore/taskcore/internal/eventbus"
)

// monitor runs on its own goroutine for the lifetime of the Cache,
// ticking every cfg.CheckInterval and reducing the cache when combined
// memory/cache pressure crosses the configured threshold (spec §4.6).
func (c *Cache) monitor() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.checkPressure()
		}
	}
}

// pressure computes memoryPressure, cachePressure, and their weighted
// total exactly per spec §4.6:
//
//	memoryPressure = max(0, (heapRatio - 0.7) / 0.3)
//	cachePressure  = max(0, (cacheRatio - 0.6) / 0.4)
//	total          = 0.6*memoryPressure + 0.4*cachePressure
func (c *Cache) pressure() (memoryPressure, cachePressure, total float64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var heapRatio float64
	if c.cfg.MaxMemoryBytes > 0 {
		heapRatio = float64(mem.HeapAlloc) / float64(c.cfg.MaxMemoryBytes)
	}
	memoryPressure = clampPositive((heapRatio - 0.7) / 0.3)

	c.mu.RLock()
	cacheRatio := float64(len(c.entries)) / float64(c.cfg.MaxEntries)
	c.mu.RUnlock()
	cachePressure = clampPositive((cacheRatio - 0.6) / 0.4)

	total = 0.6*memoryPressure + 0.4*cachePressure
	return memoryPressure, cachePressure, total
}

func clampPositive(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func (c *Cache) checkPressure() {
	_, _, total := c.pressure()
	if total < c.cfg.PressureThreshold {
		return
	}
	c.reduce(total)
}

// reduce evicts entries by ascending last-access time until the cache
// has halved in size, then emits CACHE_CLEARED with {sizeBefore,
// sizeAfter, trigger} on the bus. Pressure is not recomputed during the
// eviction loop, so it does not stop early when pressure subsides.
func (c *Cache) reduce(trigger float64) {
	c.mu.Lock()
	sizeBefore := len(c.entries)
	target := sizeBefore / 2

	type keyed struct {
		key  string
		last time.Time
	}
	ordered := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		ordered = append(ordered, keyed{k, e.lastAccess})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].last.Before(ordered[j].last) })

	for _, k := range ordered {
		if len(c.entries) <= target {
			break
		}
		delete(c.entries, k.key)
	}
	sizeAfter := len(c.entries)
	c.mu.Unlock()

	c.logger.Info("cache pressure reduce", "sizeBefore", sizeBefore, "sizeAfter", sizeAfter, "trigger", trigger)

	if c.bus == nil {
		return
	}
	_, _ = c.bus.Dispatch(context.Background(), &eventbus.Event{
		Type:      eventbus.EventCacheCleared,
		Timestamp: time.Now().UnixMilli(),
		Payload: map[string]any{
			"sizeBefore": sizeBefore,
			"sizeAfter":  sizeAfter,
			"trigger":    trigger,
		},
	})
}
