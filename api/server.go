package api

import (
	"net/http"
	"time"

	"github.com/stockpoolhq/stockpool-backend/pkg/config"
)

// NewServer wraps the handler in an http.Server with sane timeouts. Webhook
// bodies are small; anything slow is a misbehaving client.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
