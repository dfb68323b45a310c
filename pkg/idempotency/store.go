// Package idempotency records which externally delivered events were already
// processed.
package idempotency

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store claims keys for a bounded time. Implementations: MemoryStore and redis.ClaimStore.
type Store interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryStore keeps claims in process memory. Suitable for a single replica.
type MemoryStore struct {
	c *cache.Cache
}

func NewMemoryStore(defaultTTL, cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{c: cache.New(defaultTTL, cleanupInterval)}
}

// Claim reports true the first time key is seen within ttl.
func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := s.c.Add(key, time.Now(), ttl); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}
