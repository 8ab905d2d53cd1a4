package key

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/uow/internal/schema"
)

// DefaultCacheSize is the number of hash slots a session's own cache holds.
const DefaultCacheSize = 4096

type slot struct {
	hierarchy *schema.Hierarchy
	hash      uint64
}

// Cache interns exact-type keys so that equal identities share one Key
// instance. It is bounded and evicts least recently used hash slots.
// Safe for concurrent use by multiple sessions.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache[slot, []Key]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a cache holding up to size hash slots.
func NewCache(size int) (*Cache, error) {
	l, err := lru.New[slot, []Key](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Intern returns the cached key equal to k, or caches k and returns it.
func (c *Cache) Intern(k Key) Key {
	s := slot{hierarchy: k.Hierarchy(), hash: k.Hash()}
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket, _ := c.lru.Get(s)
	for _, cached := range bucket {
		if Equal(cached, k) {
			c.hits.Add(1)
			return cached
		}
	}
	c.misses.Add(1)
	c.lru.Add(s, append(bucket, k))
	return k
}

// Len is the number of hash slots in use.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every cached key.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns the hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
