package controllers

import (
	"context"
	"net/http"

	"github.com/stockpoolhq/stockpool-backend/api/responses"
	"github.com/stockpoolhq/stockpool-backend/pkg/config"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StockPool-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness only when every wired dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP, pubsubP pinger) http.HandlerFunc {
	deps := []struct {
		name string
		ping pinger
	}{
		{"database", dbP},
		{"redis", redisP},
		{"pubsub", pubsubP},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-StockPool-Env", cfg.App.Env)
		for _, dep := range deps {
			if dep.ping == nil {
				continue
			}
			if err := dep.ping.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependency unavailable").
						WithDetails(map[string]string{"dependency": dep.name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
