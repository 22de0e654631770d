package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockpoolhq/stockpool-backend/api/responses"
	"github.com/stockpoolhq/stockpool-backend/api/validators"
	"github.com/stockpoolhq/stockpool-backend/internal/syncer"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

const signatureHeader = "X-Inventory-Signature"

type InventoryIntake interface {
	Accept(ctx context.Context, n syncer.Notification) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, sourceDomain, eventID string) (bool, error)
	Delete(ctx context.Context, sourceDomain, eventID string) error
}

type inventoryEventBody struct {
	EventID    string `json:"event_id" validate:"required"`
	ItemID     string `json:"item_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
}

// InventoryWebhook accepts one provider inventory-change delivery. It
// authenticates, debounces and enqueues; all pool logic runs in the worker.
func InventoryWebhook(intake InventoryIntake, guard webhookGuard, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if intake == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intake service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		sourceDomain := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "sourceDomain")))
		if sourceDomain == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "source domain missing"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !validateSignature(payload, signingSecret, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid signature"))
			return
		}

		var body inventoryEventBody
		if err := json.Unmarshal(payload, &body); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if err := validators.ValidateStruct(&body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadySeen, err := guard.CheckAndMark(ctx, sourceDomain, body.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadySeen {
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		err = intake.Accept(ctx, syncer.Notification{
			SourceDomain: sourceDomain,
			EventID:      body.EventID,
			ItemID:       body.ItemID,
			LocationID:   body.LocationID,
		})
		if err != nil {
			// Clear the mark so the sender's retry is not swallowed.
			_ = guard.Delete(ctx, sourceDomain, body.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"event_id": body.EventID,
		})
	}
}

func validateSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
