package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/api/responses"
	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
	"github.com/stockpoolhq/stockpool-backend/pkg/logger"
)

type groupDirectory interface {
	ListActive(ctx context.Context) ([]models.Group, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	Members(ctx context.Context, groupID uuid.UUID) ([]groups.MemberRow, error)
}

type groupReconciler interface {
	ReconcileGroup(ctx context.Context, groupID uuid.UUID) (bool, error)
}

type groupStatusAdmin interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	MarkConflicted(ctx context.Context, groupID uuid.UUID) error
	ClearConflicted(ctx context.Context, groupID uuid.UUID) error
}

type groupResponse struct {
	ID                uuid.UUID  `json:"id"`
	NormalizedBarcode string     `json:"normalized_barcode"`
	PoolAvailable     int        `json:"pool_available"`
	Status            string     `json:"status"`
	LastReconciledAt  *time.Time `json:"last_reconciled_at"`
	LastSyncedAt      *time.Time `json:"last_synced_at"`
}

type groupMemberResponse struct {
	VariantID      uuid.UUID `json:"variant_id"`
	StoreID        uuid.UUID `json:"store_id"`
	SourceDomain   string    `json:"source_domain"`
	ExternalItemID string    `json:"external_item_id"`
	Tracked        bool      `json:"tracked"`
	StoreEnabled   bool      `json:"store_enabled"`
	SyncLocationID *string   `json:"sync_location_id"`
	SafetyBuffer   int       `json:"safety_buffer"`
}

type groupDetailResponse struct {
	groupResponse
	Members []groupMemberResponse `json:"members"`
}

func toGroupResponse(g *models.Group) groupResponse {
	return groupResponse{
		ID:                g.ID,
		NormalizedBarcode: g.NormalizedBarcode,
		PoolAvailable:     g.PoolAvailable,
		Status:            string(g.Status),
		LastReconciledAt:  g.LastReconciledAt,
		LastSyncedAt:      g.LastSyncedAt,
	}
}

// GroupList returns every active barcode group.
func GroupList(repo groupDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group repository unavailable"))
			return
		}

		list, err := repo.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]groupResponse, 0, len(list))
		for i := range list {
			out = append(out, toGroupResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// GroupGet returns one group with its members.
func GroupGet(repo groupDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group id"))
			return
		}

		group, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if group == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "group not found"))
			return
		}

		members, err := repo.Members(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail := groupDetailResponse{
			groupResponse: toGroupResponse(group),
			Members:       make([]groupMemberResponse, 0, len(members)),
		}
		for _, m := range members {
			detail.Members = append(detail.Members, groupMemberResponse{
				VariantID:      m.VariantID,
				StoreID:        m.StoreID,
				SourceDomain:   m.SourceDomain,
				ExternalItemID: m.ExternalItemID,
				Tracked:        m.Tracked,
				StoreEnabled:   m.StoreEnabled,
				SyncLocationID: m.SyncLocationID,
				SafetyBuffer:   m.SafetyBuffer,
			})
		}
		responses.WriteSuccess(w, detail)
	}
}

// GroupConflict freezes a group: every event and reconcile pass skips it
// until an operator clears the flag.
func GroupConflict(repo groupStatusAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group id"))
			return
		}

		group, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if group == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "group not found"))
			return
		}

		if err := repo.MarkConflicted(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group.Status = models.GroupStatusConflicted
		responses.WriteSuccess(w, toGroupResponse(group))
	}
}

// GroupClearConflict reactivates a conflicted group. The group re-enters the
// pool math on its next event, starting from a fresh bootstrap.
func GroupClearConflict(repo groupStatusAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group repository unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group id"))
			return
		}

		group, err := repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if group == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "group not found"))
			return
		}

		if err := repo.ClearConflicted(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err = repo.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toGroupResponse(group))
	}
}

// GroupReconcile forces a full live reconciliation of one group.
func GroupReconcile(svc groupReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "groupId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group id"))
			return
		}

		reconciled, err := svc.ReconcileGroup(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "reconciled": reconciled})
	}
}
