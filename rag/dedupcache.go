package rag

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupCache extends DedupEnhancer's within-response dedup with a
// cross-request, cross-process "already seen this result id" set backed by
// Redis, so repeated queries against overlapping corpora don't resurface
// the same chunk across separate pipeline runs in a multi-process
// deployment.
type RedisDedupCache struct {
	Client *redis.Client
	// KeyPrefix namespaces cache keys, e.g. "rag:seen:" followed by a
	// collection or tenant identifier.
	KeyPrefix string
	// TTL bounds how long an id is remembered; zero means no expiry.
	TTL time.Duration
}

func (c *RedisDedupCache) key(id string) string {
	return c.KeyPrefix + id
}

// SeenBefore reports whether id was previously marked seen.
func (c *RedisDedupCache) SeenBefore(ctx context.Context, id string) (bool, error) {
	n, err := c.Client.Exists(ctx, c.key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen records id as seen, subject to TTL.
func (c *RedisDedupCache) MarkSeen(ctx context.Context, id string) error {
	return c.Client.Set(ctx, c.key(id), "1", c.TTL).Err()
}
