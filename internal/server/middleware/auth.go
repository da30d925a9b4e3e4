package middleware

import (
	"net/http"
	"strings"

	"authcore/internal/server/respond"
)

const bearerPrefix = "bearer "

// AccessVerifier validates an access token and returns its user id.
// *security.TokenIssuer implements it.
type AccessVerifier interface {
	VerifyAccess(token string) (userID string, err error)
}

// RequireBearer validates the Bearer access token and sets user_id in the request context.
// A missing or malformed header is 401 Unauthorized; a token that fails verification is 403 Forbidden.
func RequireBearer(tokens AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, "Unauthorized", "Unauthorized")
				return
			}
			userID, err := tokens.VerifyAccess(token)
			if err != nil || userID == "" {
				respond.Error(w, http.StatusForbidden, "Forbidden", "Invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
