package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/api/responses"
	"github.com/stockpoolhq/stockpool-backend/api/validators"
	"github.com/stockpoolhq/stockpool-backend/internal/stores"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type storeRegisterRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=128"`
	SourceDomain    string `json:"source_domain" validate:"required,hostname"`
	SafetyBuffer    int    `json:"safety_buffer" validate:"min=0"`
	ProviderBaseURL string `json:"provider_base_url" validate:"required,url"`
	ProviderToken   string `json:"provider_token" validate:"required"`
}

type storeEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type storeSafetyBufferRequest struct {
	SafetyBuffer *int `json:"safety_buffer" validate:"required,min=0"`
}

// storeResponse is the public projection of a store. Provider credentials
// never leave the service.
type storeResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	SourceDomain   string    `json:"source_domain"`
	Enabled        bool      `json:"enabled"`
	SyncLocationID *string   `json:"sync_location_id"`
	SafetyBuffer   int       `json:"safety_buffer"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toStoreResponse(store *models.Store) storeResponse {
	return storeResponse{
		ID:             store.ID,
		Name:           store.Name,
		SourceDomain:   store.SourceDomain,
		Enabled:        store.Enabled,
		SyncLocationID: store.SyncLocationID,
		SafetyBuffer:   store.SafetyBuffer,
		CreatedAt:      store.CreatedAt,
		UpdatedAt:      store.UpdatedAt,
	}
}

// StoreRegister links a new store into the pool.
func StoreRegister(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		var payload storeRegisterRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store, err := svc.Register(r.Context(), stores.RegisterStoreInput{
			Name:            payload.Name,
			SourceDomain:    payload.SourceDomain,
			SafetyBuffer:    payload.SafetyBuffer,
			ProviderBaseURL: payload.ProviderBaseURL,
			ProviderToken:   payload.ProviderToken,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toStoreResponse(store))
	}
}

// StoreList returns every registered store.
func StoreList(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]storeResponse, 0, len(list))
		for i := range list {
			out = append(out, toStoreResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// StoreGet returns a single store by id.
func StoreGet(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "storeId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id"))
			return
		}

		store, err := svc.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, toStoreResponse(store))
	}
}

// StoreSetEnabled pauses or resumes a store's participation in the pool.
func StoreSetEnabled(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "storeId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id"))
			return
		}

		var payload storeEnabledRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetEnabled(r.Context(), id, *payload.Enabled); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "enabled": *payload.Enabled})
	}
}

// StoreSetSafetyBuffer adjusts how much stock a store withholds from the pool.
func StoreSetSafetyBuffer(svc stores.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "storeId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id"))
			return
		}

		var payload storeSafetyBufferRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.SetSafetyBuffer(r.Context(), id, *payload.SafetyBuffer); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "safety_buffer": *payload.SafetyBuffer})
	}
}
