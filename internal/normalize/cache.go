package normalize

import (
	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/apicorpus/pkg/document"
)

// ResolutionCache memoizes parsed external documents by absolute locator.
// Entries never expire on their own; the orchestrator flushes the cache at
// every provider boundary so one provider's lookups never serve another.
type ResolutionCache struct {
	store *gocache.Cache
}

// NewResolutionCache returns an empty cache.
func NewResolutionCache() *ResolutionCache {
	return &ResolutionCache{store: gocache.New(gocache.NoExpiration, 0)}
}

func (c *ResolutionCache) get(locator string) (document.Document, bool) {
	v, ok := c.store.Get(locator)
	if !ok {
		return nil, false
	}
	doc, ok := v.(document.Document)
	return doc, ok
}

func (c *ResolutionCache) set(locator string, doc document.Document) {
	c.store.Set(locator, doc, gocache.NoExpiration)
}

// Flush drops every memoized document.
func (c *ResolutionCache) Flush() {
	c.store.Flush()
}

// Len returns the number of memoized documents.
func (c *ResolutionCache) Len() int {
	return c.store.ItemCount()
}
