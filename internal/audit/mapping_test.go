package audit

import (
	"testing"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		method, pattern string
		action, res     string
	}{
		{"GET", "/api/user/profile", "get_profile", "user"},
		{"GET", "/api/user/activity", "get_activity", "user"},
		{"POST", "/api/auth/login", "login", "auth"},
		{"POST", "/api/auth/verify-otp", "verify_otp", "auth"},
		{"post", "/api/auth/forgot-password", "forgot_password", "auth"},
		{"POST", "/api/sessions", "create", "sessions"},
		{"DELETE", "/api/sessions/{id}", "delete", "sessions"},
		{"PATCH", "/api/user/{id}/phone", "update_phone", "user"},
		{"GET", "/dev/otp/{userId}", "get_otp", "dev"},
	}
	for _, tt := range tests {
		ar := ParseRoute(tt.method, tt.pattern)
		if ar.Action != tt.action {
			t.Errorf("%s %s: action = %q, want %q", tt.method, tt.pattern, ar.Action, tt.action)
		}
		if ar.Resource != tt.res {
			t.Errorf("%s %s: resource = %q, want %q", tt.method, tt.pattern, ar.Resource, tt.res)
		}
	}
}

func TestParseRoute_Overrides(t *testing.T) {
	ar := ParseRoute("POST", "/api/auth/verify-2fa-setup")
	if ar.Action != ActionTwoFactorEnabled || ar.Resource != "user" {
		t.Errorf("got %+v, want 2fa_enabled/user", ar)
	}
	ar = ParseRoute("POST", "/api/auth/enable-2fa")
	if ar.Action != "2fa_requested" || ar.Resource != "user" {
		t.Errorf("got %+v, want 2fa_requested/user", ar)
	}
}

func TestParseRoute_Unknown(t *testing.T) {
	for _, p := range []string{"", "/", "/api/", "/{id}"} {
		ar := ParseRoute("GET", p)
		if ar.Action != "unknown" || ar.Resource != "unknown" {
			t.Errorf("%q: got %+v, want unknown/unknown", p, ar)
		}
	}
}
