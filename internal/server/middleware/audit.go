package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"authcore/internal/audit"
)

// AuditRequests records an audit entry after each authenticated request. Mount it
// after RequireBearer so the user id is in context. skipRoutes holds "METHOD /pattern"
// keys of routes whose service already audits them.
func AuditRequests(logger audit.AuditLogger, skipRoutes map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if logger == nil {
				return
			}
			userID, ok := GetUserID(r.Context())
			if !ok {
				return
			}
			pattern := routePattern(r)
			if skipRoutes[r.Method+" "+pattern] {
				return
			}
			ar := audit.ParseRoute(r.Method, pattern)
			meta, _ := json.Marshal(map[string]int{"status": status(ww)})
			logger.LogEvent(r.Context(), userID, ar.Action, ar.Resource, string(meta))
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func status(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
