package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	trusted := ParseProxyCIDRs([]string{"10.0.0.0/8", "192.168.1.5", "bogus"})
	if len(trusted) != 2 {
		t.Fatalf("trusted = %v, want 2 entries", trusted)
	}
	tests := []struct {
		name   string
		remote string
		xff    string
		xrip   string
		want   string
	}{
		{"direct", "203.0.113.9:4000", "", "", "203.0.113.9"},
		{"untrusted forwarder ignored", "203.0.113.9:4000", "198.51.100.1", "", "203.0.113.9"},
		{"trusted cidr xff", "10.1.2.3:4000", "198.51.100.1, 10.1.2.3", "", "198.51.100.1"},
		{"trusted ip real ip", "192.168.1.5:4000", "", "198.51.100.2", "198.51.100.2"},
		{"no port", "203.0.113.9", "", "", "203.0.113.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xrip != "" {
				req.Header.Set("X-Real-IP", tt.xrip)
			}
			if got := ClientIP(req, trusted); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRealIP_SetsContext(t *testing.T) {
	var got string
	h := RealIP(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "203.0.113.7" {
		t.Errorf("client ip = %q", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetUserID(ctx); ok {
		t.Error("GetUserID on empty context should be false")
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		t.Errorf("ClientIPFromContext on empty context = %q", ip)
	}
	ctx = WithUserID(ctx, "user-1")
	if id, ok := GetUserID(ctx); !ok || id != "user-1" {
		t.Errorf("GetUserID = %q, %v", id, ok)
	}
	if _, ok := GetUserID(WithUserID(context.Background(), "")); ok {
		t.Error("empty user id should report false")
	}
}
