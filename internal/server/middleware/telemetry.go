package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"authcore/internal/telemetry"
	"authcore/internal/telemetry/domain"
)

// RequestTelemetry emits an http_request event after each request. Best-effort: emits
// run asynchronously and never fail the request. If emitter is nil, the middleware no-ops.
// skipRoutes is the set of route patterns not to emit (e.g. /health).
func RequestTelemetry(emitter telemetry.EventEmitter, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if emitter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			pattern := routePattern(r)
			if skipRoutes[pattern] {
				return
			}
			event := domain.NewEvent("", "http_request", "http_middleware", map[string]string{
				"method":      r.Method,
				"route":       pattern,
				"status_code": strconv.Itoa(status(ww)),
				"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
				"client_ip":   ClientIPFromContext(r.Context()),
			})
			telemetry.EmitAsync(emitter, r.Context(), event)
		})
	}
}
