package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stockpoolhq/stockpool-backend/api/controllers"
	webhookcontrollers "github.com/stockpoolhq/stockpool-backend/api/controllers/webhooks"
	"github.com/stockpoolhq/stockpool-backend/api/middleware"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/internal/recon"
	"github.com/stockpoolhq/stockpool-backend/internal/status"
	"github.com/stockpoolhq/stockpool-backend/internal/stores"
	"github.com/stockpoolhq/stockpool-backend/internal/webhooks"
	"github.com/stockpoolhq/stockpool-backend/pkg/config"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams collects everything the HTTP surface needs. The API never
// talks to providers directly; it reads state and enqueues work.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DBPinger      pinger
	RedisPinger   pinger
	PubSubPinger  pinger
	StoreService  stores.Service
	GroupRepo     groups.Repository
	ReconService  recon.Service
	StatusTracker *status.Tracker
	Intake        *webhooks.IntakeService
	WebhookGuard  *webhooks.IdempotencyGuard
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.DBPinger, params.RedisPinger, params.PubSubPinger))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/inventory/{sourceDomain}", webhookcontrollers.InventoryWebhook(
			params.Intake,
			params.WebhookGuard,
			cfg.Webhook.SigningSecret,
			logg,
		))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/stores", func(r chi.Router) {
			r.Post("/", controllers.StoreRegister(params.StoreService, logg))
			r.Get("/", controllers.StoreList(params.StoreService, logg))
			r.Get("/{storeId}", controllers.StoreGet(params.StoreService, logg))
			r.Patch("/{storeId}/enabled", controllers.StoreSetEnabled(params.StoreService, logg))
			r.Patch("/{storeId}/safety-buffer", controllers.StoreSetSafetyBuffer(params.StoreService, logg))
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", controllers.GroupList(params.GroupRepo, logg))
			r.Get("/{groupId}", controllers.GroupGet(params.GroupRepo, logg))
			r.Post("/{groupId}/reconcile", controllers.GroupReconcile(params.ReconService, logg))
			r.Post("/{groupId}/conflict", controllers.GroupConflict(params.GroupRepo, logg))
			r.Post("/{groupId}/clear-conflict", controllers.GroupClearConflict(params.GroupRepo, logg))
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/{sourceDomain}/{eventId}", controllers.EventStatus(params.StatusTracker, logg))
		})
	})

	return r
}
