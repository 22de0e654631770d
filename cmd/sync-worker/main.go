package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockpoolhq/stockpool-backend/internal/catalog"
	"github.com/stockpoolhq/stockpool-backend/internal/dispatch"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/ledger"
	"github.com/stockpoolhq/stockpool-backend/internal/snapshots"
	"github.com/stockpoolhq/stockpool-backend/internal/status"
	"github.com/stockpoolhq/stockpool-backend/internal/stores"
	"github.com/stockpoolhq/stockpool-backend/internal/syncer"
	"github.com/stockpoolhq/stockpool-backend/pkg/config"
	"github.com/stockpoolhq/stockpool-backend/pkg/db"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
	"github.com/stockpoolhq/stockpool-backend/pkg/metrics"
	"github.com/stockpoolhq/stockpool-backend/pkg/migrate"
	"github.com/stockpoolhq/stockpool-backend/pkg/provider"
	"github.com/stockpoolhq/stockpool-backend/pkg/pubsub"
	"github.com/stockpoolhq/stockpool-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	syncMetrics := metrics.NewSyncMetrics(prometheus.DefaultRegisterer)
	providers := provider.NewHTTPFactory(logg)

	storeService, err := stores.NewService(stores.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create store service", err)
		os.Exit(1)
	}

	groupRepo := groups.NewRepository(dbClient.DB())
	snapshotRepo := snapshots.NewRepository(dbClient.DB())
	pushRepo := ledger.NewPushRepository(dbClient.DB())
	idemRepo := ledger.NewIdempotencyRepository(dbClient.DB())

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()), groupRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	dispatcher, err := dispatch.NewDispatcher(providers, pushRepo, snapshotRepo, logg, syncMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create dispatcher", err)
		os.Exit(1)
	}

	syncService, err := syncer.NewService(syncer.ServiceParams{
		Tx:         dbClient,
		Stores:     storeService,
		Catalog:    catalogService,
		Groups:     groupRepo,
		Locker:     groups.NewAdvisoryLocker(),
		Snapshots:  snapshotRepo,
		Idems:      idemRepo,
		Pushes:     pushRepo,
		Providers:  providers,
		Dispatcher: dispatcher,
		Config: syncer.Config{
			SnapshotTTL: cfg.Sync.SnapshotTTL,
			EchoWindow:  cfg.Sync.EchoWindow,
		},
		Logger:  logg,
		Metrics: syncMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync service", err)
		os.Exit(1)
	}

	tracker, err := status.NewTracker(redisClient, cfg.Sync.StatusTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create status tracker", err)
		os.Exit(1)
	}

	subscription := pubsubClient.InventorySubscription()
	if subscription == nil {
		logg.Error(context.Background(), "inventory subscription not configured", errors.New("nil subscriber"))
		os.Exit(1)
	}
	subscription.ReceiveSettings.MaxOutstandingMessages = cfg.Sync.MaxConcurrency

	consumer, err := syncer.NewConsumer(syncer.ConsumerParams{
		Service:       syncService,
		Subscription:  subscription,
		Tracker:       tracker,
		Logger:        logg,
		EventDeadline: cfg.Sync.EventDeadline,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create consumer", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sync worker")

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

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}
