package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cached wraps a primary Store with a Redis read-through cache for point
// reads. Writes go to the primary store first and then update or invalidate
// the cache; prefix queries pass through to the primary so scans always see
// authoritative data.
type Cached struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCached creates a cached wrapper around a primary store.
func NewCached(primary Store, rdb *redis.Client, ttl time.Duration) *Cached {
	return &Cached{primary: primary, rdb: rdb, ttl: ttl}
}

func cacheKey(p Partition, key string) string {
	return fmt.Sprintf("kv:%s:%s", p, key)
}

func (s *Cached) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, cacheKey(p, key)).Bytes()
	if err == nil {
		return data, nil
	}

	// Cache miss (or Redis unavailable): read from primary.
	value, err := s.primary.Get(ctx, p, key)
	if err != nil {
		return nil, err
	}
	s.rdb.Set(ctx, cacheKey(p, key), value, s.ttl)
	return value, nil
}

func (s *Cached) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := s.primary.Put(ctx, p, key, value); err != nil {
		return err
	}
	s.rdb.Set(ctx, cacheKey(p, key), value, s.ttl)
	return nil
}

func (s *Cached) QueryByPrefix(ctx context.Context, p Partition, prefix string) ([]Record, error) {
	return s.primary.QueryByPrefix(ctx, p, prefix)
}

func (s *Cached) Delete(ctx context.Context, p Partition, key string) error {
	if err := s.primary.Delete(ctx, p, key); err != nil {
		return err
	}
	s.rdb.Del(ctx, cacheKey(p, key))
	return nil
}
