package storage

import (
	"context"
	"sync"
	"time"

	"github.com/compounding/growth-backend/internal/insight"
)

// MemoryInsightCache provides in-memory insight caching
type MemoryInsightCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration // 0 = no expiration
	now   func() time.Time
}

type memoryItem struct {
	insight   insight.Insight
	expiresAt time.Time
}

// NewMemoryInsightCache creates a new in-memory cache
func NewMemoryInsightCache(ttl time.Duration) *MemoryInsightCache {
	return &MemoryInsightCache{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves an insight by key
func (c *MemoryInsightCache) Get(ctx context.Context, key string) (insight.Insight, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return insight.Insight{}, false, nil
	}
	if !item.expiresAt.IsZero() && c.now().After(item.expiresAt) {
		return insight.Insight{}, false, nil
	}

	return item.insight, true, nil
}

// Set stores an insight
func (c *MemoryInsightCache) Set(ctx context.Context, key string, ins insight.Insight) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryItem{insight: ins}
	if c.ttl > 0 {
		item.expiresAt = c.now().Add(c.ttl)
	}
	c.items[key] = item

	// Drop expired entries while we hold the lock
	now := c.now()
	for k, it := range c.items {
		if !it.expiresAt.IsZero() && now.After(it.expiresAt) {
			delete(c.items, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *MemoryInsightCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
