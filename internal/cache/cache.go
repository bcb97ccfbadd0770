package cache

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Item is a cached upstream response together with its expiry instant.
type Item struct {
	Value      json.RawMessage
	Expiration time.Time
}

// Cache is a TTL key-value store guarding upstream fetches. Expired entries
// are dropped lazily on read and swept opportunistically on write.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*Item
	now     func() time.Time
	lastGC  time.Time
	gcEvery time.Duration
}

func New() *Cache {
	return &Cache{
		items:   make(map[string]*Item),
		now:     time.Now,
		gcEvery: 5 * time.Minute,
	}
}

// Key derives the deterministic cache key for a request. The fingerprint is
// an fnv64a shortening hash of the query plus serialized variables — fast
// and non-cryptographic, collisions tolerated at the hash level only.
func Key(scope, query string, variables []byte) string {
	h := fnv.New64a()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(variables)
	return fmt.Sprintf("subgraph:%s:%x", scope, h.Sum64())
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	item, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		return nil, false
	}
	if !c.now().After(item.Expiration) {
		return item.Value, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Recheck under the write lock: a concurrent Set may have refreshed the
	// entry between the stale read and here.
	if item, found := c.items[key]; found && !c.now().After(item.Expiration) {
		return item.Value, true
	}
	delete(c.items, key)
	return nil, false
}

// Set stores value under key with the given TTL, overwriting any existing
// entry. Concurrent writers for the same key are last-write-wins.
func (c *Cache) Set(key string, value json.RawMessage, ttl time.Duration) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &Item{
		Value:      value,
		Expiration: now.Add(ttl),
	}

	if now.Sub(c.lastGC) >= c.gcEvery {
		for k, item := range c.items {
			if now.After(item.Expiration) {
				delete(c.items, k)
			}
		}
		c.lastGC = now
	}
}

// Len reports the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
