package handler

import (
	"context"
	"net/http"
	"time"
)

// readinessTimeout bounds all dependency pings of one readiness check.
const readinessTimeout = 3 * time.Second

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	db    HealthChecker
	cache HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
// A nil cache is reported as disabled and does not fail readiness.
func NewHealthHandler(db, cache HealthChecker) *HealthHandler {
	return &HealthHandler{db: db, cache: cache}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz reports liveness. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz reports readiness. Postgres is required; Redis only when
// configured, since decisions fall back to the store without it.
// Ping errors are reported as "error" so internal detail stays in logs.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := map[string]string{
		"postgres": pingStatus(ctx, h.db, "not configured"),
		"redis":    pingStatus(ctx, h.cache, "disabled"),
	}

	healthy := checks["postgres"] == "ok" && checks["redis"] != "error"

	resp := HealthResponse{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func pingStatus(ctx context.Context, c HealthChecker, absent string) string {
	if c == nil {
		return absent
	}
	if err := c.Ping(ctx); err != nil {
		return "error"
	}
	return "ok"
}
