package middleware

import (
	"net/http"
	"strings"

	"github.com/quotagate/quotagate/internal/auth"
)

// RequireRole returns a middleware that admits identities holding any of
// the given roles. Must run after Identity.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.IdentityFromContext(r.Context())
			if id == nil {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			for _, role := range roles {
				if id.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, r, http.StatusForbidden, "FORBIDDEN",
				"Insufficient permissions. Required role: "+strings.Join(roles, " or "))
		})
	}
}
