package storage

import (
	"context"
	"sync"
)

// DefaultMemoryBudget bounds a MemoryCache built with a non-positive budget.
const DefaultMemoryBudget int64 = 64 << 20

// MemoryCache is an in-process ImageCache bounded by the total size of the
// cached bodies. The oldest entries are evicted until a new one fits.
type MemoryCache struct {
	mu      sync.Mutex
	budget  int64
	size    int64
	order   []string
	entries map[string]Image
}

func NewMemoryCache(budget int64) *MemoryCache {
	if budget <= 0 {
		budget = DefaultMemoryBudget
	}
	return &MemoryCache{budget: budget, entries: map[string]Image{}}
}

func (c *MemoryCache) Get(_ context.Context, url string) (Image, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	img, ok := c.entries[url]
	return img, ok, nil
}

// Put stores img. Bodies larger than the whole budget are not cached.
func (c *MemoryCache) Put(_ context.Context, url string, img Image) error {
	n := int64(len(img.Data))
	if n > c.budget {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.remove(url)
	for c.size+n > c.budget && len(c.order) > 0 {
		c.remove(c.order[0])
	}
	c.order = append(c.order, url)
	c.entries[url] = img
	c.size += n
	return nil
}

func (c *MemoryCache) remove(url string) {
	img, ok := c.entries[url]
	if !ok {
		return
	}
	delete(c.entries, url)
	c.size -= int64(len(img.Data))
	for i, u := range c.order {
		if u == url {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *MemoryCache) Purge(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = map[string]Image{}
	c.order = nil
	c.size = 0
	return n, nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Size is the number of cached body bytes.
func (c *MemoryCache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
