package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	factory := NewHTTPFactory(nil)
	client := factory.ForStore(Credentials{BaseURL: server.URL, AccessToken: "tok"}).(*HTTPClient)
	client.baseDelay = time.Millisecond
	client.maxDelay = 2 * time.Millisecond
	return client
}

func TestReadLevelsDecodesSubset(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", got)
		}
		if got := r.URL.Query().Get("item_ids"); got != "item-1,item-2" {
			t.Errorf("unexpected item_ids %q", got)
		}
		json.NewEncoder(w).Encode(levelsResponse{Levels: []Level{
			{ItemID: "item-1", LocationID: "loc-1", Available: 7, OnHand: 9},
		}})
	}))

	levels, err := client.ReadLevels(context.Background(), []string{"item-1", "item-2"})
	if err != nil {
		t.Fatalf("read levels: %v", err)
	}
	if len(levels) != 1 {
		t.Fatalf("expected provider to return known subset, got %d levels", len(levels))
	}
	if levels[0].Available != 7 || levels[0].OnHand != 9 {
		t.Fatalf("unexpected level: %+v", levels[0])
	}
}

func TestWriteDeltaZeroIsNoop(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	if err := client.WriteDelta(context.Background(), "item-1", "loc-1", 0); err != nil {
		t.Fatalf("zero delta should be a no-op: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("zero delta must not reach the provider")
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.WriteDelta(context.Background(), "item-1", "loc-1", -3); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.ReadLevels(context.Background(), []string{"missing"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found code, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("not-found must not be retried, got %d attempts", got)
	}
}

func TestExhaustedRetriesSurfaceDependencyError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	client.maxAttempts = 2

	err := client.WriteDelta(context.Background(), "item-1", "loc-1", 1)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency code, got %v", err)
	}
}
