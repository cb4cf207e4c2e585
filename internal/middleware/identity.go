package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/quotagate/quotagate/internal/auth"
)

// IdentityVerifier validates bearer identity tokens.
type IdentityVerifier interface {
	Verify(token string) (*auth.Identity, error)
}

// Identity returns a middleware that requires a valid bearer identity token
// and stores the verified identity in the request context.
func Identity(verifier IdentityVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				logAuthFailure(logger, r, "missing_token")
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid identity token")
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				logAuthFailure(logger, r, "invalid_token")
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid identity token")
				return
			}

			AddLogAttrs(r.Context(), slog.String("subject", id.Subject))
			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
		})
	}
}

// extractBearer returns the token from "Authorization: Bearer <token>".
func extractBearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}
