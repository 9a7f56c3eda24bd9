//go:build integration

package redis_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	quotaredis "github.com/ineyio/infergate/quota/redis"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func newTestStore(t *testing.T, client *goredis.Client) (*quotaredis.Store, string) {
	t.Helper()
	// Use a unique prefix per test to avoid collisions.
	prefix := "test:" + t.Name() + ":"
	s := quotaredis.New(client, quotaredis.WithKeyPrefix(prefix))
	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	})
	return s, prefix
}

func TestUsageMissingIsZero(t *testing.T) {
	client := newTestClient(t)
	store, _ := newTestStore(t, client)

	n, err := store.Usage(context.Background(), "nobody", "2026-01-01")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestIncrementReturnsNewTotal(t *testing.T) {
	client := newTestClient(t)
	store, _ := newTestStore(t, client)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Increment(ctx, "u1", "2026-01-01")
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}

	n, err := store.Usage(ctx, "u1", "2026-01-01")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected usage=3, got %d", n)
	}
}

func TestDaysAreSeparateBuckets(t *testing.T) {
	client := newTestClient(t)
	store, _ := newTestStore(t, client)
	ctx := context.Background()

	store.Increment(ctx, "u1", "2026-01-01")
	store.Increment(ctx, "u1", "2026-01-01")

	n, err := store.Usage(ctx, "u1", "2026-01-02")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected new day to start at 0, got %d", n)
	}
}

func TestIncrementSetsExpiry(t *testing.T) {
	client := newTestClient(t)
	store, prefix := newTestStore(t, client)
	ctx := context.Background()

	day := time.Now().UTC().Format("2006-01-02")
	if _, err := store.Increment(ctx, "u1", day); err != nil {
		t.Fatalf("increment: %v", err)
	}

	ttl, err := client.TTL(ctx, prefix+day+":u1").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 24*time.Hour || ttl > 48*time.Hour {
		t.Fatalf("expected ttl in (24h, 48h], got %v", ttl)
	}
}

func TestBadDayKey(t *testing.T) {
	client := newTestClient(t)
	store, _ := newTestStore(t, client)

	if _, err := store.Increment(context.Background(), "u1", "yesterday"); err == nil {
		t.Fatal("expected error for malformed day key")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	client := newTestClient(t)
	store, _ := newTestStore(t, client)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Increment(ctx, "u1", "2026-01-01"); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Usage(ctx, "u1", "2026-01-01")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 50 {
		t.Fatalf("expected 50 after concurrent increments, got %d", n)
	}
}

func TestIncrementBelowStopsAtCeiling(t *testing.T) {
	client := newTestClient(t)
	store, prefix := newTestStore(t, client)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.IncrementBelow(ctx, "u1", "2026-01-01", 10)
			if err != nil {
				t.Errorf("increment below: %v", err)
				return
			}
			if ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 10 {
		t.Fatalf("expected 10 granted increments, got %d", granted)
	}
	n, ok, err := store.IncrementBelow(ctx, "u1", "2026-01-01", 10)
	if err != nil {
		t.Fatalf("increment below: %v", err)
	}
	if ok || n != 10 {
		t.Fatalf("expected (10, false) at ceiling, got (%d, %v)", n, ok)
	}

	ttl, err := client.TTL(ctx, prefix+"2026-01-01:u1").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl == -1 {
		t.Fatal("expected expiry on conditionally incremented key")
	}
}

func TestKeyPrefixIsolation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	a := quotaredis.New(client, quotaredis.WithKeyPrefix("test:isoA:"))
	b := quotaredis.New(client, quotaredis.WithKeyPrefix("test:isoB:"))
	t.Cleanup(func() {
		client.Del(ctx, "test:isoA:2026-01-01:u1", "test:isoB:2026-01-01:u1")
	})

	a.Increment(ctx, "u1", "2026-01-01")

	n, err := b.Usage(ctx, "u1", "2026-01-01")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected prefix isolation, got %d", n)
	}
}
