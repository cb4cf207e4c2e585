package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/handler/dto"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/service"
)

// AdminHandler provides operator endpoints for inspecting entitlements.
type AdminHandler struct {
	engine *service.Engine
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(engine *service.Engine, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, logger: logger}
}

// ListEntitlements handles GET /api/v1/admin/entitlements?subject=.
func (h *AdminHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "subject is required")
		return
	}

	views, err := h.engine.ListEntitlements(r.Context(), subject)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "subject is required")
			return
		}
		writeInternalError(w, r, h.logger, "list_entitlements", err)
		return
	}

	resp := dto.EntitlementListResponse{
		Subject: subject,
		Data:    make([]dto.EntitlementResponse, 0, len(views)),
	}
	for _, v := range views {
		resp.Data = append(resp.Data, dto.ToEntitlementResponse(v.Entitlement, v.Tier, v.Usage, v.DailyLimit, v.QuotaRemaining))
	}

	h.logger.Info("admin_entitlement_lookup",
		"admin", auth.SubjectFromContext(r.Context()),
		"subject", subject,
		"count", len(resp.Data),
	)

	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /api/v1/admin/entitlements.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateEntitlementStatusRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	key := model.EntitlementKey{Subject: req.Subject, SolutionID: req.SolutionID}
	err := h.engine.SetEntitlementStatus(r.Context(), key, model.EntitlementStatus(req.Status))
	switch {
	case errors.Is(err, service.ErrEntitlementNotFound):
		writeError(w, r, http.StatusNotFound, "ENTITLEMENT_NOT_FOUND", "Entitlement not found")
		return
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "status must be one of: active inactive")
		return
	case err != nil:
		writeInternalError(w, r, h.logger, "update_entitlement_status", err)
		return
	}

	h.logger.Info("admin_entitlement_status",
		"admin", auth.SubjectFromContext(r.Context()),
		"subject", req.Subject,
		"solution_id", req.SolutionID,
		"status", req.Status,
	)

	w.WriteHeader(http.StatusNoContent)
}
