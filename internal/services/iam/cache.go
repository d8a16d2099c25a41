package iam

import (
	"context"
	"sync"
	"time"
)

// DefaultIdentityTTL is how long a resolved identity stays cached.
const DefaultIdentityTTL = 10 * time.Minute

// CacheEntry is a cached identity for one auth UID.
type CacheEntry struct {
	AuthUID   string    `json:"authUid"`
	Identity  *Identity `json:"data"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Fresh reports whether the entry belongs to authUID and has not expired at now.
func (e *CacheEntry) Fresh(authUID string, now time.Time) bool {
	return e != nil && e.Identity != nil && e.AuthUID == authUID && !now.After(e.ExpiresAt)
}

// IdentityCache stores resolved identities. Implementations must be safe for
// concurrent use and must not return entries stored under a different auth UID.
type IdentityCache interface {
	Get(ctx context.Context, authUID string) (*CacheEntry, bool)
	Set(ctx context.Context, entry *CacheEntry)
	Delete(ctx context.Context, authUID string)
	Clear(ctx context.Context)
}

// SingleSlotCache holds at most one entry. Storing a principal evicts whoever
// was cached before, and a lookup for anyone else empties the slot.
type SingleSlotCache struct {
	mu   sync.Mutex
	slot *CacheEntry
}

// NewSingleSlotCache creates an empty single-slot cache.
func NewSingleSlotCache() *SingleSlotCache {
	return &SingleSlotCache{}
}

// Get returns the slot if it holds authUID. A slot holding someone else is evicted.
func (c *SingleSlotCache) Get(_ context.Context, authUID string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot == nil {
		return nil, false
	}
	if c.slot.AuthUID != authUID {
		c.slot = nil
		return nil, false
	}
	return c.slot, true
}

// Set overwrites the slot.
func (c *SingleSlotCache) Set(_ context.Context, entry *CacheEntry) {
	c.mu.Lock()
	c.slot = entry
	c.mu.Unlock()
}

// Delete empties the slot if it still holds authUID. An entry stored for
// someone else in the meantime is kept.
func (c *SingleSlotCache) Delete(_ context.Context, authUID string) {
	c.mu.Lock()
	if c.slot != nil && c.slot.AuthUID == authUID {
		c.slot = nil
	}
	c.mu.Unlock()
}

// Clear empties the slot.
func (c *SingleSlotCache) Clear(context.Context) {
	c.mu.Lock()
	c.slot = nil
	c.mu.Unlock()
}

// Len returns 1 when the slot is occupied.
func (c *SingleSlotCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return 0
	}
	return 1
}
