// Package dedup suppresses reprocessing of redelivered events.
package dedup

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kailas-cloud/triage/internal/metrics"
)

// DefaultCapacity is the number of external ids remembered.
const DefaultCapacity = 10000

// Cache is a bounded LRU set of processed external ids.
type Cache struct {
	mu    sync.Mutex
	items *lru.Cache[string, struct{}]
}

// New creates a cache holding up to capacity ids. Non-positive capacity uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	items, err := lru.NewWithEvict[string, struct{}](capacity, func(string, struct{}) {
		metrics.DedupEvictionsTotal.Inc()
	})
	if err != nil {
		// Only returned for a non-positive size, excluded above.
		panic(err)
	}
	return &Cache{items: items}
}

// Seen reports whether id was recorded and, if so, marks it most recently used.
func (c *Cache) Seen(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items.Get(id)
	return ok
}

// Record inserts or refreshes id, evicting the least recently used id at capacity.
func (c *Cache) Record(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items.Add(id, struct{}{})
}

// Len returns the number of remembered ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}
