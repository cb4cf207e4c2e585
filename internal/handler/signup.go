package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/handler/dto"
	"github.com/quotagate/quotagate/internal/service"
)

// SignupHandler registers authenticated end users.
type SignupHandler struct {
	svc    *service.SignupService
	logger *slog.Logger
}

// NewSignupHandler creates a new SignupHandler.
func NewSignupHandler(svc *service.SignupService, logger *slog.Logger) *SignupHandler {
	return &SignupHandler{svc: svc, logger: logger}
}

// Signup handles POST /api/v1/signup.
// The subject always comes from the identity token; the body may only
// supply an email when the token carries none.
func (h *SignupHandler) Signup(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req dto.SignupRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	email := id.Email
	if email == "" {
		email = req.Email
	}
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "email is required")
		return
	}

	res, err := h.svc.Signup(r.Context(), service.SignupInput{Subject: id.Subject, Email: email})
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "EMAIL_TAKEN", "Email is already registered")
		return
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "A subject and email are required")
		return
	case err != nil:
		writeInternalError(w, r, h.logger, "signup", err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.ToSignupResponse(res.User, res.Entitlement, res.Created, res.Pending))
}
