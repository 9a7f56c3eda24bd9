package quota_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/infergate/quota"
)

func TestMemoryUsageStore_IncrementAndUsage(t *testing.T) {
	s := quota.NewMemoryUsageStore()
	ctx := context.Background()

	n, err := s.Usage(ctx, "u1", "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, n)

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "u1", "2026-01-01")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	n, _ = s.Usage(ctx, "u1", "2026-01-02")
	assert.Zero(t, n, "new day starts empty")

	n, _ = s.Usage(ctx, "u2", "2026-01-01")
	assert.Zero(t, n, "users are isolated")
}

func TestMemoryUsageStore_ConcurrentIncrements(t *testing.T) {
	s := quota.NewMemoryUsageStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment(ctx, "u1", "2026-01-01")
		}()
	}
	wg.Wait()

	n, err := s.Usage(ctx, "u1", "2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestMemoryUsageStore_Prune(t *testing.T) {
	s := quota.NewMemoryUsageStore()
	ctx := context.Background()

	_, _ = s.Increment(ctx, "u1", "2026-01-01")
	_, _ = s.Increment(ctx, "u2", "2026-01-01")
	_, _ = s.Increment(ctx, "u1", "2026-01-02")

	assert.Equal(t, 2, s.Prune("2026-01-02"))

	n, _ := s.Usage(ctx, "u1", "2026-01-02")
	assert.Equal(t, int64(1), n)
	n, _ = s.Usage(ctx, "u1", "2026-01-01")
	assert.Zero(t, n)
}

func TestMemoryUsageStore_IncrementBelow(t *testing.T) {
	s := quota.NewMemoryUsageStore()
	ctx := context.Background()

	n, ok, err := s.IncrementBelow(ctx, "u1", "2026-01-01", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)

	n, ok, _ = s.IncrementBelow(ctx, "u1", "2026-01-01", 2)
	assert.True(t, ok)
	assert.Equal(t, int64(2), n)

	n, ok, _ = s.IncrementBelow(ctx, "u1", "2026-01-01", 2)
	assert.False(t, ok, "ceiling reached")
	assert.Equal(t, int64(2), n)
}

func TestMemoryUsageStore_ConcurrentIncrementBelow(t *testing.T) {
	s := quota.NewMemoryUsageStore()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := s.IncrementBelow(ctx, "u1", "2026-01-01", 10); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, granted)
	n, _ := s.Usage(ctx, "u1", "2026-01-01")
	assert.Equal(t, int64(10), n)
}
