// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"authcore/internal/audit"
	"authcore/internal/devotp"
	identityhandler "authcore/internal/identity/handler"
	"authcore/internal/server/middleware"
	"authcore/internal/server/respond"
	"authcore/internal/telemetry"
)

// Deps holds what the router mounts. Auth and Tokens are required; the rest are optional.
type Deps struct {
	Auth   *identityhandler.AuthHandler
	Tokens middleware.AccessVerifier
	// Health serves GET /health. If nil, /health always answers ok.
	Health http.Handler
	// Audit records bearer-route requests. If nil, only service-level events are audited.
	Audit audit.AuditLogger
	// Telemetry receives http_request events. If nil, none are emitted.
	Telemetry telemetry.EventEmitter
	// DevOTP is mounted at /dev/otp/{userId} when set. Leave nil in production.
	DevOTP devotp.Store

	TrustedProxies []net.IPNet
	CORSOrigins    []string
	// RequestTimeout cancels the request context; zero disables it.
	RequestTimeout time.Duration
}

// auditSkip lists bearer routes whose outcome the auth service already audits.
var auditSkip = map[string]bool{
	"POST /api/auth/verify-2fa-setup": true,
}

var telemetrySkip = map[string]bool{
	"/health": true,
}

// NewRouter returns the HTTP API.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	formatter := &chimw.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "", log.Flags()),
		NoColor: true,
	}
	r.Use(chimw.RequestLogger(formatter))
	r.Use(chimw.Recoverer)
	r.Use(secureHeaders)
	r.Use(cors(deps.CORSOrigins))
	r.Use(middleware.RealIP(deps.TrustedProxies))
	if deps.RequestTimeout > 0 {
		r.Use(chimw.Timeout(deps.RequestTimeout))
	}
	r.Use(middleware.RequestTelemetry(deps.Telemetry, telemetrySkip))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "NotFound", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respond.JSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "timestamp": time.Now().UTC()})
		})
	}

	h := deps.Auth
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/verify-otp", h.VerifyOTP)
	r.Post("/api/auth/forgot-password", h.ForgotPassword)
	r.Post("/api/auth/reset-password", h.ResetPassword)
	r.Post("/api/auth/refresh", h.Refresh)
	r.Post("/api/auth/logout", h.Logout)

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireBearer(deps.Tokens))
		if deps.Audit != nil {
			pr.Use(middleware.AuditRequests(deps.Audit, auditSkip))
		}

		pr.Post("/api/auth/enable-2fa", h.Enable2FA)
		pr.Post("/api/auth/verify-2fa-setup", h.Verify2FASetup)
		pr.Get("/api/user/profile", h.Profile)
		pr.Get("/api/user/activity", h.Activity)
	})

	if deps.DevOTP != nil {
		r.Method(http.MethodGet, "/dev/otp/{userId}", devotp.NewHandler(deps.DevOTP))
	}
	return r
}
