package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type fakeStore struct {
	values map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (s *fakeStore) Get(_ context.Context, key string) (string, error) {
	return s.values[key], nil
}

func (s *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *fakeStore) IdempotencyKey(scope, id string) string {
	return "gb:idempotency:" + scope + ":" + id
}

func (s *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func idempotentRouter(store *fakeStore, calls *atomic.Int64) http.Handler {
	r := chi.NewRouter()
	r.Use(Idempotency(store, nil))
	r.Post("/api/v1/orders/{orderId}/join", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"joined":true}}`))
	})
	r.Get("/api/v1/orders/{orderId}", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls atomic.Int64
	router := idempotentRouter(store, &calls)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/join", strings.NewReader(`{"units":10}`))
		req.Header.Set("Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replayed body differs: %q vs %q", first.Body.String(), second.Body.String())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newFakeStore()
	var calls atomic.Int64
	router := idempotentRouter(store, &calls)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/join", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(`{"units":10}`); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	rec := send(`{"units":99}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reuse status = %d, want 409", rec.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
}

func TestIdempotencyRequiresKeyOnCoveredRoutes(t *testing.T) {
	store := newFakeStore()
	var calls atomic.Int64
	router := idempotentRouter(store, &calls)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/join", strings.NewReader(`{"units":10}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if calls.Load() != 0 {
		t.Fatalf("handler should not run without a key")
	}
}

func TestIdempotencySkipsUncoveredRoutes(t *testing.T) {
	store := newFakeStore()
	var calls atomic.Int64
	router := idempotentRouter(store, &calls)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times, want 1", calls.Load())
	}
	if len(store.values) != 0 {
		t.Fatalf("nothing should be stored for GET routes")
	}
}
