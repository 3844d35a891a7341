package feed

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL is how long a rendered feed stays fresh.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Cache holds rendered calendar payloads keyed "listingSlug/roomSlug".
// Entries expire after a TTL and can be evicted immediately when a sync
// changes the underlying bookings.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache with the given TTL. A non-positive TTL
// selects DefaultCacheTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(listingSlug, roomSlug string) string {
	return listingSlug + "/" + roomSlug
}

// Get returns the cached payload for a room feed, or false if missing
// or expired.
func (c *Cache) Get(listingSlug, roomSlug string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(listingSlug, roomSlug)]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.payload, true
}

// Put stores a rendered payload for a room feed.
func (c *Cache) Put(listingSlug, roomSlug string, payload []byte) {
	c.mu.Lock()
	c.entries[cacheKey(listingSlug, roomSlug)] = cacheEntry{
		payload:   payload,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate evicts a single room feed.
func (c *Cache) Invalidate(listingSlug, roomSlug string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(listingSlug, roomSlug))
	c.mu.Unlock()
}

// InvalidateListing evicts every cached feed belonging to a listing.
func (c *Cache) InvalidateListing(listingSlug string) int {
	prefix := listingSlug + "/"
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of entries, including expired ones not yet
// overwritten. Used by the status endpoint.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
