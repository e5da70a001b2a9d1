package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	counter   int64
	expiresAt time.Time
}

// MemoryCache is an in-memory Cache with the same semantics as RedisCache.
// Used by unit tests and local development.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]*memoryItem
	now   func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]*memoryItem), now: time.Now}
}

// SetClock overrides the clock, letting tests advance time over expiries.
func (c *MemoryCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) live(it *memoryItem) bool {
	return it != nil && (it.expiresAt.IsZero() || c.now().Before(it.expiresAt))
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := &memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		it.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.items[key]
	if !c.live(it) {
		return nil, false, nil
	}
	return append([]byte(nil), it.value...), true, nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := c.items[key]
	if !c.live(it) {
		it = &memoryItem{}
		c.items[key] = it
	}
	it.counter++
	it.value = []byte(strconv.FormatInt(it.counter, 10))
	it.expiresAt = c.now().Add(expiry)
	return it.counter, nil
}

func (c *MemoryCache) Ping(_ context.Context) error { return nil }
