package iam

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUCache is an in-process keyed cache with independent per-entry expiry.
// The least recently used principal is evicted once size is reached.
type LRUCache struct {
	lru *expirable.LRU[string, *CacheEntry]
}

// NewLRUCache creates a keyed cache holding up to size principals for ttl.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &LRUCache{lru: expirable.NewLRU[string, *CacheEntry](size, nil, ttl)}
}

// Get implements IdentityCache.
func (c *LRUCache) Get(_ context.Context, authUID string) (*CacheEntry, bool) {
	return c.lru.Get(authUID)
}

// Set implements IdentityCache.
func (c *LRUCache) Set(_ context.Context, entry *CacheEntry) {
	if entry == nil {
		return
	}
	c.lru.Add(entry.AuthUID, entry)
}

// Delete implements IdentityCache.
func (c *LRUCache) Delete(_ context.Context, authUID string) {
	c.lru.Remove(authUID)
}

// Clear implements IdentityCache.
func (c *LRUCache) Clear(context.Context) {
	c.lru.Purge()
}

// Len returns the number of cached principals.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}
