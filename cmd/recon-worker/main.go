package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockpoolhq/stockpool-backend/internal/cron"
	"github.com/stockpoolhq/stockpool-backend/internal/dispatch"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/ledger"
	"github.com/stockpoolhq/stockpool-backend/internal/recon"
	"github.com/stockpoolhq/stockpool-backend/internal/snapshots"
	"github.com/stockpoolhq/stockpool-backend/pkg/config"
	"github.com/stockpoolhq/stockpool-backend/pkg/db"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
	"github.com/stockpoolhq/stockpool-backend/pkg/metrics"
	"github.com/stockpoolhq/stockpool-backend/pkg/migrate"
	"github.com/stockpoolhq/stockpool-backend/pkg/provider"
	"github.com/stockpoolhq/stockpool-backend/pkg/redis"
)

const lockKeyFormat = "sp:recon-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "recon-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "recon-worker"

	logg = logger.New(logger.Options{
		ServiceName: "recon-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	providers := provider.NewHTTPFactory(logg)

	groupRepo := groups.NewRepository(dbClient.DB())
	snapshotRepo := snapshots.NewRepository(dbClient.DB())
	pushRepo := ledger.NewPushRepository(dbClient.DB())
	idemRepo := ledger.NewIdempotencyRepository(dbClient.DB())

	dispatcher, err := dispatch.NewDispatcher(providers, pushRepo, snapshotRepo, logg, syncMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	reconService, err := recon.NewService(recon.ServiceParams{
		Tx:         dbClient,
		Groups:     groupRepo,
		Locker:     groups.NewAdvisoryLocker(),
		Snapshots:  snapshotRepo,
		Providers:  providers,
		Dispatcher: dispatcher,
		Config: recon.Config{
			Parallelism: cfg.Recon.Parallelism,
			ReadTimeout: cfg.Recon.ReadTimeout,
		},
		Logger:  logg,
		Metrics: syncMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recon service", err)
		os.Exit(1)
	}

	reconJob, err := recon.NewJob(reconService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create recon job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewLedgerRetentionJob(cron.LedgerRetentionParams{
		Pushes: pushRepo,
		Idems:  idemRepo,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create retention job", err)
		os.Exit(1)
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Recon.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(reconJob, retentionJob),
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Recon.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting recon worker")

	exporter := metrics.NewExporterServer(cfg.App.MetricsPort)
	go func() {
		if err := exporter.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics exporter stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := exporter.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down metrics exporter", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "recon worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "recon worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
