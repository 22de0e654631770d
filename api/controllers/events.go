package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockpoolhq/stockpool-backend/api/responses"
	"github.com/stockpoolhq/stockpool-backend/internal/status"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type statusReader interface {
	Get(ctx context.Context, sourceDomain, eventID string) (*status.Entry, error)
}

// EventStatus returns the tracked progress of one inventory event. Entries
// expire, so a miss only means the event is unknown or old.
func EventStatus(tracker statusReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if tracker == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "status tracker unavailable"))
			return
		}

		sourceDomain := strings.ToLower(chi.URLParam(r, "sourceDomain"))
		eventID := chi.URLParam(r, "eventId")
		if sourceDomain == "" || eventID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "source domain and event id are required"))
			return
		}

		entry, err := tracker.Get(r.Context(), sourceDomain, eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no status recorded for event"))
			return
		}

		responses.WriteSuccess(w, entry)
	}
}
