package fetch

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL bounds how long a fetched body is kept for revalidation.
const DefaultCacheTTL = 6 * time.Hour

// entry is a cached response body with its validators.
type entry struct {
	Body         []byte
	ETag         string
	LastModified string
	MediaType    string
}

// Cache keeps previously fetched bodies keyed by locator so later requests
// can be revalidated with If-None-Match / If-Modified-Since.
type Cache struct {
	store *gocache.Cache
}

// NewCache creates a cache with the given TTL and cleanup interval.
func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{store: gocache.New(ttl, cleanupInterval)}
}

func (c *Cache) get(locator string) (entry, bool) {
	v, ok := c.store.Get(locator)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

func (c *Cache) set(locator string, e entry) {
	c.store.Set(locator, e, gocache.DefaultExpiration)
}

// Delete removes a locator from the cache.
func (c *Cache) Delete(locator string) {
	c.store.Delete(locator)
}

// Flush removes every entry.
func (c *Cache) Flush() {
	c.store.Flush()
}

// ItemCount returns the number of cached locators.
func (c *Cache) ItemCount() int {
	return c.store.ItemCount()
}
