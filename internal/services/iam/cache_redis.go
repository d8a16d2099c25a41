package iam

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DefaultRedisKeyPrefix namespaces identity entries in Redis.
const DefaultRedisKeyPrefix = "mappa:iam:identity:"

// RedisCache shares identities between server replicas. Redis failures are
// logged and behave like misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewRedisCache creates a cache storing entries under prefix+authUID.
func NewRedisCache(client redis.UniversalClient, prefix string, logger logrus.FieldLogger) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.WithField("component", "redis_identity_cache"),
		now:    time.Now,
	}
}

// WithClock sets the clock entry expiry is measured against. It must match the
// clock that computed CacheEntry.ExpiresAt.
func (c *RedisCache) WithClock(now func() time.Time) *RedisCache {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *RedisCache) key(authUID string) string {
	return c.prefix + authUID
}

// Get implements IdentityCache.
func (c *RedisCache) Get(ctx context.Context, authUID string) (*CacheEntry, bool) {
	raw, err := c.client.Get(ctx, c.key(authUID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).WithField("auth_uid", authUID).Debug("identity cache get failed")
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.WithError(err).WithField("auth_uid", authUID).Debug("identity cache entry unreadable")
		c.Delete(ctx, authUID)
		return nil, false
	}
	if entry.AuthUID != authUID {
		return nil, false
	}
	return &entry, true
}

// Set implements IdentityCache. The Redis TTL follows the entry's expiry.
func (c *RedisCache) Set(ctx context.Context, entry *CacheEntry) {
	if entry == nil {
		return
	}
	ttl := entry.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).Debug("identity cache entry not encodable")
		return
	}
	if err := c.client.Set(ctx, c.key(entry.AuthUID), raw, ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("auth_uid", entry.AuthUID).Debug("identity cache set failed")
	}
}

// Delete implements IdentityCache.
func (c *RedisCache) Delete(ctx context.Context, authUID string) {
	if err := c.client.Del(ctx, c.key(authUID)).Err(); err != nil {
		c.logger.WithError(err).WithField("auth_uid", authUID).Debug("identity cache delete failed")
	}
}

// Clear removes every entry under the prefix.
func (c *RedisCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 100 {
			c.del(ctx, keys)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).Debug("identity cache scan failed")
	}
	c.del(ctx, keys)
}

func (c *RedisCache) del(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.WithError(err).Debug("identity cache clear failed")
	}
}
