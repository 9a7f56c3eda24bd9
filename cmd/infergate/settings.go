package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Settings is the process configuration read from INFERGATE_* variables.
// Governance policy lives in the YAML file at ConfigPath.
type Settings struct {
	ListenAddr    string        `envconfig:"LISTEN_ADDR" default:":8080"`
	ConfigPath    string        `envconfig:"CONFIG_PATH" default:""`
	RedisURL      string        `envconfig:"REDIS_URL" default:""`
	DatabaseURL   string        `envconfig:"DATABASE_URL" default:""`
	LedgerPath    string        `envconfig:"LEDGER_PATH" default:"data/ledger.jsonl"`
	JobsDBPath    string        `envconfig:"JOBS_DB_PATH" default:"data/jobs.db"`
	AdminKey      string        `envconfig:"ADMIN_KEY" default:""`
	PartnerKeys   []string      `envconfig:"PARTNER_KEYS" default:""`
	HFAPIKey      string        `envconfig:"HF_API_KEY" default:""`
	HFBaseURL     string        `envconfig:"HF_BASE_URL" default:""`
	LogLevel      zapcore.Level `envconfig:"LOG_LEVEL" default:"info"`
	PruneInterval time.Duration `envconfig:"PRUNE_INTERVAL" default:"1h"`
}

func loadSettings() (Settings, error) {
	var s Settings
	if err := envconfig.Process("INFERGATE", &s); err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return s, nil
}

// newLogger returns a production JSON logger and installs it as the global.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
