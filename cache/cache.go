package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/bizscout/models"
)

// entry holds a cached outcome with its creation timestamp.
type entry struct {
	outcome   models.FetchOutcome
	createdAt time.Time
}

// Cache is a simple in-memory cache of successful lookup outcomes.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a new Cache with the given maximum number of entries and TTL.
// A background goroutine runs every 5 minutes to evict expired entries.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := newCache(maxEntries, ttl, time.Now)
	go c.cleanupLoop()
	return c
}

func newCache(maxEntries int, ttl time.Duration, now func() time.Time) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        now,
	}
}

// Key normalises a query (case and surrounding or repeated whitespace) and hashes it.
func Key(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached outcome for query if it is younger than the TTL.
func (c *Cache) Get(query string) (models.FetchOutcome, bool) {
	c.mu.RLock()
	e, ok := c.store[Key(query)]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.createdAt) > c.ttl {
		return models.FetchOutcome{}, false
	}
	return e.outcome, true
}

// Set stores an outcome. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Cache) Set(query string, outcome models.FetchOutcome) {
	key := Key(query)
	c.mu.Lock()
	defer c.mu.Unlock()

	// Evict one random entry if at capacity (map iteration is random in Go).
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		outcome:   outcome,
		createdAt: c.now(),
	}
}

// Len returns the number of cached outcomes.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// evictExpired drops entries older than the TTL.
func (c *Cache) evictExpired() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		c.evictExpired()
	}
}
