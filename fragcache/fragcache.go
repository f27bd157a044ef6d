// Package fragcache holds sanitized content fragments for the lifetime of a
// page. Entries never expire and are never replaced.
package fragcache

import (
	"sync"

	"golang.org/x/net/html"

	"quicknav/dom"
)

// Cache maps absolute URLs to fragment trees. Callers get clones, so the
// stored trees stay immutable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*html.Node
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*html.Node)}
}

// Get returns a copy of the fragment stored for url.
func (c *Cache) Get(url string) (*html.Node, bool) {
	c.mu.RLock()
	n, ok := c.entries[url]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return dom.Clone(n), true
}

// Put stores a copy of n unless url is already present. It reports whether
// the entry was added.
func (c *Cache) Put(url string, n *html.Node) bool {
	cp := dom.Clone(n)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[url]; ok {
		return false
	}
	c.entries[url] = cp
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
