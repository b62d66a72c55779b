package noncecache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the replay cache with Redis, so the (signer, nonce)
// history survives a process restart. Entries expire after TTL, which
// must be at least as long as the longest verification window a caller
// configures, or replay protection silently weakens after the TTL lapses.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore using client, namespacing keys under
// prefix (e.g. "lloom:nonce:") and expiring entries after ttl.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// SeenAndRecord uses SETNX semantics (via Redis's SetNX) so the
// check-and-mark is atomic even under concurrent validators sharing the
// same Redis instance.
func (s *RedisStore) SeenAndRecord(ctx context.Context, signer string, nonce uint64) (bool, error) {
	k := s.prefix + key(signer, nonce)

	ok, err := s.client.SetNX(ctx, k, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("noncecache: redis setnx: %w", err)
	}
	// SetNX returns true when the key was newly set (i.e. NOT already seen).
	return !ok, nil
}
