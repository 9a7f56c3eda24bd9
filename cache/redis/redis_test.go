//go:build integration

package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	cacheredis "github.com/ineyio/infergate/cache/redis"
)

func newTestStore(t *testing.T) (*cacheredis.Store, *goredis.Client, string) {
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

	prefix := "test:" + t.Name() + ":"
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})
	return cacheredis.New(client, cacheredis.WithKeyPrefix(prefix)), client, prefix
}

func TestGetMiss(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, ok, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestSetThenGet(t *testing.T) {
	store, client, prefix := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte(`{"result":"x"}`), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(v) != `{"result":"x"}` {
		t.Fatalf("unexpected value ok=%v v=%q", ok, v)
	}

	ttl, err := client.TTL(ctx, prefix+"k").Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl in (0, 1h], got %v", ttl)
	}
}

func TestExpiry(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	_, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatal("expected entry to expire")
	}
}
