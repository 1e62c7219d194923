// Package urlcache caches public image URLs in Redis with a short TTL.
// It is an optimization layer only: the object store remains the source of
// truth for whether an artifact exists.
package urlcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = time.Hour

// Cache is the Redis-backed URL cache.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a cache with the default 1h TTL.
func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: defaultTTL}
}

func cacheKey(subject, variant string) string {
	return fmt.Sprintf("cache:image:%s:%s", subject, variant)
}

// Get returns the cached URL, or "" on a miss.
func (c *Cache) Get(ctx context.Context, subject, variant string) (string, error) {
	val, err := c.rdb.Get(ctx, cacheKey(subject, variant)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set caches the URL for the TTL window.
func (c *Cache) Set(ctx context.Context, subject, variant, url string) error {
	return c.rdb.Set(ctx, cacheKey(subject, variant), url, c.ttl).Err()
}

// Invalidate drops one cached entry.
func (c *Cache) Invalidate(ctx context.Context, subject, variant string) error {
	return c.rdb.Del(ctx, cacheKey(subject, variant)).Err()
}

// InvalidateSubject drops every cached URL for a subject (used on
// uninstall, alongside the storage purge).
func (c *Cache) InvalidateSubject(ctx context.Context, subject string) error {
	pattern := fmt.Sprintf("cache:image:%s:*", subject)

	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
