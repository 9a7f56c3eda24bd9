package infergate_test

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ig "github.com/ineyio/infergate"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("INFERGATE_TEST_TRACKER", "partner-42")

	path := filepath.Join(t.TempDir(), "infergate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_tier: standard
quota:
  user_daily: 50
  soft_block_window: 1m
cache:
  ttl: 1h
budget:
  daily_usd: 12.5
affiliates:
  default_tracker: ${INFERGATE_TEST_TRACKER}
  rules:
    - keyword: laptop
      url: https://shop.example/laptops
`), 0o644))

	cfg, err := ig.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ig.TierStandard, cfg.DefaultTier)
	assert.Equal(t, int64(50), cfg.Quota.UserDaily)
	assert.Equal(t, int64(2000), cfg.Quota.PartnerDaily, "unset fields keep defaults")
	assert.Equal(t, time.Minute, cfg.Quota.SoftBlockWindow)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 12.5, cfg.Budget.DailyUSD)
	assert.Equal(t, "partner-42", cfg.Affiliates.DefaultTracker)
	require.Len(t, cfg.Affiliates.Rules, 1)
	assert.Len(t, cfg.Tiers, 3)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := ig.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quota:\n  user_daily: 5000\n"), 0o644))
	_, err = ig.LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin > partner > user")
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, ig.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*ig.Config)
		want   string
	}{
		{"zero user quota", func(c *ig.Config) { c.Quota.UserDaily = 0 }, "user_daily"},
		{"unordered ceilings", func(c *ig.Config) { c.Quota.PartnerDaily = c.Quota.AdminDaily }, "admin > partner > user"},
		{"zero ttl", func(c *ig.Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"zero budget", func(c *ig.Config) { c.Budget.DailyUSD = 0 }, "daily_usd"},
		{"no workers", func(c *ig.Config) { c.Async.Workers = 0 }, "workers"},
		{"no tiers", func(c *ig.Config) { c.Tiers = nil }, "at least one tier"},
		{"duplicate tier", func(c *ig.Config) { c.Tiers = append(c.Tiers, c.Tiers[0]) }, "duplicate"},
		{"unknown fallback", func(c *ig.Config) { c.Budget.FallbackTier = "gold" }, "fallback_tier"},
		{"unknown default", func(c *ig.Config) { c.DefaultTier = "gold" }, "default_tier"},
		{"empty rule", func(c *ig.Config) { c.Affiliates.Rules = []ig.AffiliateRule{{Keyword: "x"}} }, "keyword and url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ig.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	adm := &ig.AdmissionError{UserID: "u1", Used: 3, Limit: 2}
	risk := &ig.RiskError{UserID: "u1", Score: 40, Reasons: []string{"usage spike"}}

	assert.Equal(t, http.StatusTooManyRequests, ig.HTTPStatus(adm))
	assert.Equal(t, http.StatusForbidden, ig.HTTPStatus(risk))
	assert.Equal(t, http.StatusNotFound, ig.HTTPStatus(ig.ErrNotFound))
	assert.Equal(t, http.StatusBadRequest, ig.HTTPStatus(ig.ErrInvalidRequest))
	assert.Equal(t, http.StatusConflict, ig.HTTPStatus(ig.ErrJobFinalized))
	assert.Equal(t, http.StatusServiceUnavailable, ig.HTTPStatus(ig.ErrStorageFailure))
	assert.Equal(t, http.StatusServiceUnavailable, ig.HTTPStatus(fmt.Errorf("enqueue: %w", ig.ErrPoolFull)))
	assert.Equal(t, http.StatusOK, ig.HTTPStatus(nil))

	assert.True(t, ig.IsRetryable(adm))
	assert.True(t, ig.IsRetryable(ig.ErrStorageFailure))
	assert.True(t, ig.IsRetryable(ig.ErrPoolFull))
	assert.False(t, ig.IsRetryable(risk))
	assert.False(t, ig.IsRetryable(ig.ErrInvalidRequest))

	assert.Contains(t, risk.Error(), "usage spike")
}
