package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/stockpoolhq/stockpool-backend/internal/status"
)

type fakeStatusReader struct {
	entries map[string]*status.Entry
}

func (f *fakeStatusReader) Get(_ context.Context, sourceDomain, eventID string) (*status.Entry, error) {
	return f.entries[sourceDomain+"/"+eventID], nil
}

func eventsRouter(tracker statusReader) http.Handler {
	r := chi.NewRouter()
	r.Get("/events/{sourceDomain}/{eventId}", EventStatus(tracker, nil))
	return r
}

func TestEventStatusReturnsEntry(t *testing.T) {
	tracker := &fakeStatusReader{entries: map[string]*status.Entry{
		"alpha.example.com/evt-1": {Phase: status.PhaseDone, Outcome: "processed"},
	}}
	router := eventsRouter(tracker)

	req := httptest.NewRequest(http.MethodGet, "/events/Alpha.Example.com/evt-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data status.Entry `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Phase != status.PhaseDone {
		t.Fatalf("expected done phase, got %s", envelope.Data.Phase)
	}
}

func TestEventStatusMissIs404(t *testing.T) {
	router := eventsRouter(&fakeStatusReader{entries: map[string]*status.Entry{}})

	req := httptest.NewRequest(http.MethodGet, "/events/alpha.example.com/evt-unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
