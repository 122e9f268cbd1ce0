package cache

import (
	"context"
	"testing"
	"time"

	"github.com/taskcore/taskcore/internal/eventbus"
)

func newTestCache(cfg Config) *Cache {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	return New(cfg, nil, nil)
}

func TestCacheBasicOperations(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	if _, _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss for missing key")
	}

	c.Set("key1", "value1", 1)
	v, version, ok := c.Get("key1")
	if !ok {
		t.Fatalf("expected hit for key1")
	}
	if v != "value1" || version != 1 {
		t.Fatalf("unexpected cached value: %v, version %d", v, version)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newTestCache(Config{TTL: 20 * time.Millisecond})
	defer c.Close()

	c.Set("key1", "value1", 1)
	if _, _, ok := c.Get("key1"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	time.Sleep(30 * time.Millisecond)
	if _, _, ok := c.Get("key1"); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestCacheSetIgnoresStaleVersion(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	c.Set("key1", "v2", 2)
	c.Set("key1", "v1", 1)

	v, version, ok := c.Get("key1")
	if !ok || version != 2 || v != "v2" {
		t.Fatalf("expected newer version to win, got %v/%d", v, version)
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := newTestCache(Config{MaxEntries: 2})
	defer c.Close()

	c.Set("a", "a", 1)
	time.Sleep(time.Millisecond)
	c.Set("b", "b", 1)
	time.Sleep(time.Millisecond)
	c.Get("b") // keep b's last-access fresh relative to a
	c.Set("c", "c", 1)

	if _, _, ok := c.Get("a"); ok {
		t.Fatalf("expected oldest entry a to be evicted")
	}
	if _, _, ok := c.Get("c"); !ok {
		t.Fatalf("expected newly set entry c to be present")
	}
}

func TestCacheGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	calls := 0
	load := func(ctx context.Context) (any, error) {
		calls++
		time.Sleep(10 * time.Millisecond)
		return "loaded", nil
	}

	results := make(chan any, 4)
	for i := 0; i < 4; i++ {
		go func() {
			v, err := c.GetOrLoad(context.Background(), "shared", 1, load)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results <- v
		}()
	}
	for i := 0; i < 4; i++ {
		if v := <-results; v != "loaded" {
			t.Fatalf("unexpected value: %v", v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected singleflight to collapse to 1 load call, got %d", calls)
	}
}

func TestCachePressureFormulas(t *testing.T) {
	c := newTestCache(Config{MaxMemoryBytes: 1, MaxEntries: 10})
	defer c.Close()

	for i := 0; i < 7; i++ {
		c.Set(string(rune('a'+i)), i, 1)
	}
	_, cachePressure, _ := c.pressure()
	if cachePressure <= 0 {
		t.Fatalf("expected nonzero cache pressure at 70%% full, got %f", cachePressure)
	}
}

func TestCacheReduceHalvesSizeAndEmitsEvent(t *testing.T) {
	bus := eventbus.New(nil)
	c := New(Config{MaxEntries: 10, CheckInterval: time.Hour}, nil, bus)
	defer c.Close()

	for i := 0; i < 10; i++ {
		c.Set(string(rune('a'+i)), i, 1)
	}
	before := c.Stats().Entries
	c.reduce(0.9)
	after := c.Stats().Entries
	if after > before/2 {
		t.Fatalf("expected reduce to halve entries, before=%d after=%d", before, after)
	}
	history := bus.History()
	if len(history) != 1 || history[0].Type != eventbus.EventCacheCleared {
		t.Fatalf("expected one CACHE_CLEARED event, got %v", history)
	}
}

func TestFingerprintIsStableForEqualArgs(t *testing.T) {
	a, err := Fingerprint("list_tasks", map[string]any{"status": "PENDING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Fingerprint("list_tasks", map[string]any{"status": "PENDING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical fingerprints for identical args")
	}
	c, err := Fingerprint("list_tasks", map[string]any{"status": "DONE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == c {
		t.Fatalf("expected different fingerprints for different args")
	}
}
