// Command infergate runs the governance gateway as an HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ineyio/infergate"
	"github.com/ineyio/infergate/cache"
	cacheredis "github.com/ineyio/infergate/cache/redis"
	"github.com/ineyio/infergate/generator/huggingface"
	"github.com/ineyio/infergate/jobs/sqlite"
	"github.com/ineyio/infergate/ledger"
	ledgerpg "github.com/ineyio/infergate/ledger/postgres"
	"github.com/ineyio/infergate/meter"
	prommeter "github.com/ineyio/infergate/meter/prometheus"
	"github.com/ineyio/infergate/quota"
	quotapg "github.com/ineyio/infergate/quota/postgres"
	quotaredis "github.com/ineyio/infergate/quota/redis"
	"github.com/ineyio/infergate/server"
)

func main() {
	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(settings.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(settings, logger); err != nil {
		logger.Fatal("infergate stopped", zap.Error(err))
	}
}

func run(settings Settings, logger *zap.Logger) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := infergate.DefaultConfig()
	if settings.ConfigPath != "" {
		loaded, err := infergate.LoadConfig(settings.ConfigPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	stores, closeStores, err := openStores(sigCtx, settings, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var genOpts []huggingface.Option
	if settings.HFBaseURL != "" {
		genOpts = append(genOpts, huggingface.WithBaseURL(settings.HFBaseURL))
	}

	gw, err := infergate.NewGateway(cfg, stores,
		infergate.WithGenerator(huggingface.New(settings.HFAPIKey, genOpts...)),
		infergate.WithMeter(meter.Multi{
			meter.NewLogMeter(logger.Named("meter")),
			prommeter.New(registry),
		}),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: settings.ListenAddr,
		Handler: server.New(gw,
			server.HeaderResolver{AdminKey: settings.AdminKey, PartnerKeys: settings.PartnerKeys},
			server.WithLogger(logger.Named("http")),
			server.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("infergate starting", zap.String("addr", settings.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-sigCtx.Done():
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Error("async jobs did not drain", zap.Error(err))
	}
	logger.Info("infergate stopped")
	return nil
}

// openStores selects backings from settings: redis for usage and cache when
// REDIS_URL is set, postgres for usage and the ledger when DATABASE_URL is
// set, and local files otherwise. Jobs always live in sqlite.
func openStores(ctx context.Context, settings Settings, logger *zap.Logger) (infergate.Stores, func(), error) {
	var (
		stores  infergate.Stores
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (infergate.Stores, func(), error) {
		closeAll()
		return infergate.Stores{}, nil, err
	}

	if settings.RedisURL != "" {
		opts, err := goredis.ParseURL(settings.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		client := goredis.NewClient(opts)
		closers = append(closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		stores.Usage = quotaredis.New(client)
		stores.Cache = cacheredis.New(client)
		logger.Info("using redis for usage and cache")
	}

	if settings.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, settings.DatabaseURL)
		if err != nil {
			return fail(fmt.Errorf("connect postgres: %w", err))
		}
		closers = append(closers, pool.Close)

		if stores.Usage == nil {
			usage := quotapg.New(pool)
			if err := usage.EnsureSchema(ctx); err != nil {
				return fail(err)
			}
			stores.Usage = usage
			logger.Info("using postgres for usage")
		}

		led := ledgerpg.New(pool)
		if err := led.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		stores.Ledger = led
		logger.Info("using postgres for the ledger")
	}

	if stores.Usage == nil {
		mem := quota.NewMemoryUsageStore()
		stores.Usage = mem
		go pruneUsage(ctx, mem, settings.PruneInterval, logger)
	}
	if stores.Cache == nil {
		stores.Cache = cache.NewMemoryStore()
	}
	if stores.Ledger == nil {
		fs, err := ledger.OpenFileStore(settings.LedgerPath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = fs.Close() })
		stores.Ledger = fs
		logger.Info("using file ledger", zap.String("path", settings.LedgerPath))
	}

	js, err := sqlite.Open(settings.JobsDBPath)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = js.Close() })
	stores.Jobs = js

	return stores, closeAll, nil
}

// pruneUsage drops in-memory counters for past days.
func pruneUsage(ctx context.Context, store *quota.MemoryUsageStore, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.Prune(infergate.DayKey(now)); n > 0 {
				logger.Debug("pruned usage counters", zap.Int("count", n))
			}
		}
	}
}
