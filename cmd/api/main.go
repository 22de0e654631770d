package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockpoolhq/stockpool-backend/api"
	"github.com/stockpoolhq/stockpool-backend/api/routes"
	"github.com/stockpoolhq/stockpool-backend/internal/dispatch"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/ledger"
	"github.com/stockpoolhq/stockpool-backend/internal/recon"
	"github.com/stockpoolhq/stockpool-backend/internal/snapshots"
	"github.com/stockpoolhq/stockpool-backend/internal/status"
	"github.com/stockpoolhq/stockpool-backend/internal/stores"
	"github.com/stockpoolhq/stockpool-backend/internal/webhooks"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	tracker, err := status.NewTracker(redisClient, cfg.Sync.StatusTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create status tracker", err)
		os.Exit(1)
	}

	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Webhook.DuplicateTTL, "webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	intake, err := webhooks.NewIntakeService(webhooks.IntakeParams{
		Publisher: pubsubClient.InventoryPublisher(),
		Tracker:   tracker,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create intake service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		Config:        cfg,
		Logger:        logg,
		DBPinger:      dbClient,
		RedisPinger:   redisClient,
		PubSubPinger:  pubsubClient,
		StoreService:  storeService,
		GroupRepo:     groupRepo,
		ReconService:  reconService,
		StatusTracker: tracker,
		Intake:        intake,
		WebhookGuard:  guard,
	})

	server := api.NewServer(cfg, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": server.Addr,
	})
	logg.Info(ctx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
