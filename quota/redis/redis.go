// Package redis provides a Redis-backed UsageStore for infergate.
//
// Counters are plain Redis integers keyed by user and UTC day, incremented
// with INCR and expired a day after their bucket closes. This makes it safe
// for multi-instance deployments.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/infergate"
)

// Store is a Redis-backed UsageStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var _ infergate.UsageStore = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "infergate:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed UsageStore.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "infergate:usage:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageKey(userID, day string) string {
	return s.keyPrefix + day + ":" + userID
}

// incrementScript atomically increments a counter and pins its expiry.
// KEYS[1] = usage key
// ARGV[1] = expire_at (unix seconds)
//
// Returns the new counter value.
var incrementScript = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("EXPIREAT", KEYS[1], tonumber(ARGV[1]))
end
return n
`)

// incrementBelowScript increments a counter only while it is below a ceiling.
// KEYS[1] = usage key
// ARGV[1] = ceiling
// ARGV[2] = expire_at (unix seconds)
//
// Returns {1, new} when incremented, {0, current} otherwise.
var incrementBelowScript = goredis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur >= tonumber(ARGV[1]) then
    return {0, cur}
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
    redis.call("EXPIREAT", KEYS[1], tonumber(ARGV[2]))
end
return {1, n}
`)

// Usage returns the counter for userID on day.
func (s *Store) Usage(ctx context.Context, userID, day string) (int64, error) {
	n, err := s.client.Get(ctx, s.usageKey(userID, day)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("infergate/redis: usage: %w", err)
	}
	return n, nil
}

// Increment adds one to the counter and returns the new total.
func (s *Store) Increment(ctx context.Context, userID, day string) (int64, error) {
	expireAt, err := expiryFor(day)
	if err != nil {
		return 0, err
	}

	n, err := incrementScript.Run(ctx, s.client,
		[]string{s.usageKey(userID, day)},
		expireAt.Unix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("infergate/redis: increment: %w", err)
	}
	return n, nil
}

// IncrementBelow adds one while the counter is below ceiling.
func (s *Store) IncrementBelow(ctx context.Context, userID, day string, ceiling int64) (int64, bool, error) {
	expireAt, err := expiryFor(day)
	if err != nil {
		return 0, false, err
	}

	res, err := incrementBelowScript.Run(ctx, s.client,
		[]string{s.usageKey(userID, day)},
		ceiling, expireAt.Unix(),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("infergate/redis: increment below: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("infergate/redis: increment below: unexpected reply %v", res)
	}
	return res[1], res[0] == 1, nil
}

// expiryFor keeps a day bucket for one full day after it closes.
func expiryFor(day string) (time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("infergate/redis: bad day key %q: %w", day, err)
	}
	return start.Add(48 * time.Hour), nil
}
