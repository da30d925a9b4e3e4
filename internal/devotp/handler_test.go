package devotp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestHandler_GetOTP(t *testing.T) {
	store := NewMemoryStore()
	store.Put(context.Background(), "u1", "123456", time.Now().Add(time.Minute))

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/dev/otp/{userId}", NewHandler(store))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var body otpResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.OTP != "123456" || body.Note != "DEV MODE ONLY" {
		t.Errorf("body = %+v", body)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/otp/u2", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown user code = %d, want 404", rec.Code)
	}
}
