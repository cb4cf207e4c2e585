package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quotagate/quotagate/internal/handler/dto"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/service"
)

// UsageHandler serves the user-scoped quota of the built-in solution.
type UsageHandler struct {
	engine *service.Engine
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(engine *service.Engine, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{engine: engine, logger: logger}
}

// Check handles POST /api/v1/usage/check.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req dto.UsageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	d, err := h.engine.CheckLimits(r.Context(), req.UserEmail)
	if err != nil {
		h.handleServiceError(w, r, "check_limits", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToCheckLimitsResponse(d))
}

// Increment handles POST /api/v1/usage/increment.
// A refused increment is a 429 that still carries today's usage.
func (h *UsageHandler) Increment(w http.ResponseWriter, r *http.Request) {
	var req dto.UsageRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	d, err := h.engine.IncrementUsage(r.Context(), req.UserEmail)
	if err != nil {
		h.handleServiceError(w, r, "increment_usage", err)
		return
	}

	if !d.Allowed && d.Reason == model.ReasonLimitReached {
		writeJSON(w, http.StatusTooManyRequests, dto.IncrementUsageResponse{
			Success: false,
			Message: "Daily search limit reached. Upgrade your plan for more searches.",
			Usage:   dto.ToUsageSnapshot(d),
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.IncrementUsageResponse{
		Success: true,
		Usage:   dto.ToUsageSnapshot(d),
	})
}

// handleServiceError maps service errors to HTTP responses.
func (h *UsageHandler) handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownUser):
		writeJSON(w, http.StatusNotFound, dto.UserNotFoundResponse{Success: false, Message: "User not found"})
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "userEmail is required")
	default:
		writeInternalError(w, r, h.logger, op, err)
	}
}
