package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/internal/groups"
	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

type fakeGroupDirectory struct {
	groups  []models.Group
	byID    map[uuid.UUID]*models.Group
	members map[uuid.UUID][]groups.MemberRow
}

func (f *fakeGroupDirectory) ListActive(_ context.Context) ([]models.Group, error) {
	return f.groups, nil
}

func (f *fakeGroupDirectory) FindByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	return f.byID[id], nil
}

func (f *fakeGroupDirectory) Members(_ context.Context, groupID uuid.UUID) ([]groups.MemberRow, error) {
	return f.members[groupID], nil
}

type fakeReconciler struct {
	calls  []uuid.UUID
	result bool
}

func (f *fakeReconciler) ReconcileGroup(_ context.Context, groupID uuid.UUID) (bool, error) {
	f.calls = append(f.calls, groupID)
	return f.result, nil
}

func groupsRouter(repo groupDirectory, svc groupReconciler) http.Handler {
	r := chi.NewRouter()
	r.Get("/groups", GroupList(repo, nil))
	r.Get("/groups/{groupId}", GroupGet(repo, nil))
	r.Post("/groups/{groupId}/reconcile", GroupReconcile(svc, nil))
	return r
}

func TestGroupGetIncludesMembers(t *testing.T) {
	id := uuid.New()
	loc := "loc-1"
	dir := &fakeGroupDirectory{
		byID: map[uuid.UUID]*models.Group{
			id: {ID: id, NormalizedBarcode: "BC-1", PoolAvailable: 7, Status: models.GroupStatusActive},
		},
		members: map[uuid.UUID][]groups.MemberRow{
			id: {
				{VariantID: uuid.New(), SourceDomain: "alpha.example.com", ExternalItemID: "item-a", Tracked: true, StoreEnabled: true, SyncLocationID: &loc, SafetyBuffer: 1},
			},
		},
	}
	router := groupsRouter(dir, &fakeReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/groups/"+id.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}

	var envelope struct {
		Data groupDetailResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.PoolAvailable != 7 {
		t.Fatalf("expected pool 7, got %d", envelope.Data.PoolAvailable)
	}
	if len(envelope.Data.Members) != 1 || envelope.Data.Members[0].SourceDomain != "alpha.example.com" {
		t.Fatalf("unexpected members %+v", envelope.Data.Members)
	}
}

func TestGroupGetUnknownID(t *testing.T) {
	dir := &fakeGroupDirectory{byID: map[uuid.UUID]*models.Group{}}
	router := groupsRouter(dir, &fakeReconciler{})

	req := httptest.NewRequest(http.MethodGet, "/groups/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type fakeGroupAdmin struct {
	byID map[uuid.UUID]*models.Group
}

func (f *fakeGroupAdmin) FindByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	if g, ok := f.byID[id]; ok {
		copied := *g
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeGroupAdmin) MarkConflicted(_ context.Context, id uuid.UUID) error {
	f.byID[id].Status = models.GroupStatusConflicted
	return nil
}

func (f *fakeGroupAdmin) ClearConflicted(_ context.Context, id uuid.UUID) error {
	if f.byID[id].Status == models.GroupStatusConflicted {
		f.byID[id].Status = models.GroupStatusActive
		f.byID[id].LastReconciledAt = nil
	}
	return nil
}

func groupAdminRouter(repo groupStatusAdmin) http.Handler {
	r := chi.NewRouter()
	r.Post("/groups/{groupId}/conflict", GroupConflict(repo, nil))
	r.Post("/groups/{groupId}/clear-conflict", GroupClearConflict(repo, nil))
	return r
}

func TestGroupConflictFreezesGroup(t *testing.T) {
	id := uuid.New()
	admin := &fakeGroupAdmin{byID: map[uuid.UUID]*models.Group{
		id: {ID: id, NormalizedBarcode: "BC-1", Status: models.GroupStatusActive},
	}}
	router := groupAdminRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/groups/"+id.String()+"/conflict", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data groupResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != string(models.GroupStatusConflicted) {
		t.Fatalf("expected conflicted status, got %s", envelope.Data.Status)
	}
	if admin.byID[id].Status != models.GroupStatusConflicted {
		t.Fatalf("expected stored group to be conflicted")
	}
}

func TestGroupClearConflictReactivates(t *testing.T) {
	id := uuid.New()
	admin := &fakeGroupAdmin{byID: map[uuid.UUID]*models.Group{
		id: {ID: id, NormalizedBarcode: "BC-1", Status: models.GroupStatusConflicted},
	}}
	router := groupAdminRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/groups/"+id.String()+"/clear-conflict", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data groupResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Status != string(models.GroupStatusActive) {
		t.Fatalf("expected active status, got %s", envelope.Data.Status)
	}
}

func TestGroupConflictUnknownID(t *testing.T) {
	admin := &fakeGroupAdmin{byID: map[uuid.UUID]*models.Group{}}
	router := groupAdminRouter(admin)

	req := httptest.NewRequest(http.MethodPost, "/groups/"+uuid.NewString()+"/conflict", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGroupReconcileTriggersService(t *testing.T) {
	svc := &fakeReconciler{result: true}
	router := groupsRouter(&fakeGroupDirectory{}, svc)
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/groups/"+id.String()+"/reconcile", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.calls) != 1 || svc.calls[0] != id {
		t.Fatalf("expected one reconcile call for %s, got %v", id, svc.calls)
	}
}
