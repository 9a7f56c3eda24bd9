// Package redis provides a Redis-backed CacheStore for infergate.
//
// Entries are written with SET EX so expiry is enforced by Redis itself,
// shared by every instance behind the same server.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/infergate"
)

// Store is a Redis-backed CacheStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ infergate.CacheStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "infergate:cache:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed CacheStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "infergate:cache:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value for key, or ok=false when it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("infergate/redis: cache get: %w", err)
	}
	return b, true, nil
}

// Set stores value under key for ttl.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("infergate/redis: cache set: %w", err)
	}
	return nil
}
