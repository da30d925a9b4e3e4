package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"authcore/internal/telemetry/domain"
)

type chanEmitter chan *domain.Event

func (c chanEmitter) Emit(ctx context.Context, e *domain.Event) error {
	c <- e
	return nil
}

func TestRequestTelemetry(t *testing.T) {
	events := make(chanEmitter, 4)
	r := chi.NewRouter()
	r.Use(RequestTelemetry(events, map[string]bool{"/health": true}))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {})
	r.Post("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))

	select {
	case e := <-events:
		if e.EventType != "http_request" || e.Source != "http_middleware" {
			t.Errorf("event = %+v", e)
		}
		var meta map[string]string
		if err := json.Unmarshal(e.Metadata, &meta); err != nil {
			t.Fatal(err)
		}
		if meta["route"] != "/api/auth/login" || meta["status_code"] != "401" || meta["method"] != "POST" {
			t.Errorf("metadata = %v", meta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no telemetry event emitted")
	}
	select {
	case e := <-events:
		t.Errorf("unexpected second event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestTelemetry_NilEmitter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	h := RequestTelemetry(nil, nil)(next)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
