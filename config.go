package infergate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level governance configuration.
type Config struct {
	DefaultTier     Tier             `yaml:"default_tier"`
	VerificationURL string           `yaml:"verification_url"`
	Quota           QuotaConfig      `yaml:"quota"`
	Cache           CacheConfig      `yaml:"cache"`
	Budget          BudgetConfig     `yaml:"budget"`
	Fraud           FraudConfig      `yaml:"fraud"`
	Async           AsyncConfig      `yaml:"async"`
	Generation      GenerationConfig `yaml:"generation"`
	Tiers           []TierConfig     `yaml:"tiers"`
	Affiliates      AffiliateConfig  `yaml:"affiliates"`
}

// QuotaConfig sets the daily request ceilings per caller class.
type QuotaConfig struct {
	UserDaily       int64         `yaml:"user_daily"`
	PartnerDaily    int64         `yaml:"partner_daily"`
	AdminDaily      int64         `yaml:"admin_daily"`
	SoftBlockWindow time.Duration `yaml:"soft_block_window"`
	UpgradeHint     string        `yaml:"upgrade_hint"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	HitCostUSD float64       `yaml:"hit_cost_usd"`
}

// BudgetConfig configures the cost governor.
type BudgetConfig struct {
	DailyUSD     float64 `yaml:"daily_usd"`
	FallbackTier Tier    `yaml:"fallback_tier"`
}

// FraudConfig configures the fraud scorer signals.
type FraudConfig struct {
	SpikeThreshold int      `yaml:"spike_threshold"`
	SuspiciousIPs  []string `yaml:"suspicious_ip_prefixes"`
	ScriptedAgents []string `yaml:"scripted_agents"`
}

// AsyncConfig configures the sync/async split and the worker pool.
type AsyncConfig struct {
	PromptThreshold int `yaml:"prompt_threshold"`
	Workers         int `yaml:"workers"`
	QueueSize       int `yaml:"queue_size"`
}

// GenerationConfig bounds calls to the generation upstream.
type GenerationConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// TierConfig prices a tier and maps it to an upstream model.
type TierConfig struct {
	Name        Tier    `yaml:"name"`
	Model       string  `yaml:"model"`
	BaseCostUSD float64 `yaml:"base_cost_usd"`
}

// AffiliateConfig configures keyword-driven offer links appended to results.
type AffiliateConfig struct {
	DefaultTracker string          `yaml:"default_tracker"`
	Rules          []AffiliateRule `yaml:"rules"`
}

// AffiliateRule appends URL when Keyword appears in a generated text.
type AffiliateRule struct {
	Keyword string `yaml:"keyword"`
	URL     string `yaml:"url"`
}

// DefaultConfig returns the built-in governance policy.
func DefaultConfig() Config {
	return Config{
		DefaultTier:     TierLite,
		VerificationURL: "/api/v1/kyc/submit",
		Quota: QuotaConfig{
			UserDaily:       100,
			PartnerDaily:    2000,
			AdminDaily:      10000,
			SoftBlockWindow: 5 * time.Minute,
			UpgradeHint:     "Activate a partner plan or configure an admin API key",
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			HitCostUSD: 0.0001,
		},
		Budget: BudgetConfig{
			DailyUSD:     5,
			FallbackTier: TierLite,
		},
		Fraud: FraudConfig{
			SpikeThreshold: 50,
			SuspiciousIPs:  []string{"10."},
			ScriptedAgents: []string{"curl"},
		},
		Async: AsyncConfig{
			PromptThreshold: 400,
			Workers:         4,
			QueueSize:       64,
		},
		Generation: GenerationConfig{
			Timeout: 10 * time.Second,
		},
		Tiers: []TierConfig{
			{Name: TierLite, Model: "tiiuae/falcon-7b-instruct", BaseCostUSD: 0.0005},
			{Name: TierStandard, Model: "mistralai/Mistral-7B-Instruct-v0.2", BaseCostUSD: 0.002},
			{Name: TierPremium, Model: "meta-llama/Llama-2-13b-chat-hf", BaseCostUSD: 0.02},
		},
	}
}

// LoadConfig reads and parses a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("infergate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("infergate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	q := c.Quota
	if q.UserDaily <= 0 {
		return fmt.Errorf("infergate: config: quota.user_daily must be positive")
	}
	if !(q.AdminDaily > q.PartnerDaily && q.PartnerDaily > q.UserDaily) {
		return fmt.Errorf("infergate: config: quota ceilings must satisfy admin > partner > user (got %d/%d/%d)",
			q.AdminDaily, q.PartnerDaily, q.UserDaily)
	}
	if q.SoftBlockWindow <= 0 {
		return fmt.Errorf("infergate: config: quota.soft_block_window must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("infergate: config: cache.ttl must be positive")
	}
	if c.Cache.HitCostUSD < 0 {
		return fmt.Errorf("infergate: config: cache.hit_cost_usd must not be negative")
	}
	if c.Budget.DailyUSD <= 0 {
		return fmt.Errorf("infergate: config: budget.daily_usd must be positive")
	}
	if c.Async.Workers <= 0 {
		return fmt.Errorf("infergate: config: async.workers must be positive")
	}
	if c.Async.QueueSize < 0 {
		return fmt.Errorf("infergate: config: async.queue_size must not be negative")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("infergate: config: generation.timeout must be positive")
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("infergate: config: at least one tier is required")
	}
	names := make(map[Tier]bool, len(c.Tiers))
	for i, t := range c.Tiers {
		if t.Name == "" {
			return fmt.Errorf("infergate: config: tiers[%d]: name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("infergate: config: duplicate tier %q", t.Name)
		}
		if t.BaseCostUSD < 0 {
			return fmt.Errorf("infergate: config: tiers[%d] (%s): base_cost_usd must not be negative", i, t.Name)
		}
		names[t.Name] = true
	}
	if !names[c.Budget.FallbackTier] {
		return fmt.Errorf("infergate: config: budget.fallback_tier %q is not a configured tier", c.Budget.FallbackTier)
	}
	if !names[c.DefaultTier] {
		return fmt.Errorf("infergate: config: default_tier %q is not a configured tier", c.DefaultTier)
	}

	for i, r := range c.Affiliates.Rules {
		if r.Keyword == "" || r.URL == "" {
			return fmt.Errorf("infergate: config: affiliates.rules[%d]: keyword and url are required", i)
		}
	}

	return nil
}

// tier returns the config for a tier name.
func (c Config) tier(name Tier) (TierConfig, bool) {
	for _, t := range c.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return TierConfig{}, false
}
