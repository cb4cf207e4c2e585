package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/quotagate/quotagate/internal/handler/dto"
	"github.com/quotagate/quotagate/internal/middleware"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/service"
)

// TokenHandler handles token issuance and simple validation.
type TokenHandler struct {
	minter *service.Minter
	engine *service.Engine
	logger *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(minter *service.Minter, engine *service.Engine, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		minter: minter,
		engine: engine,
		logger: logger,
	}
}

// Issue handles POST /api/v1/tokens.
// Returns 201 for a new entitlement and 200 when one already existed.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req dto.IssueTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ent, created, err := h.minter.Mint(r.Context(), service.MintInput{
		Subject:    req.UserID,
		SolutionID: req.SolutionID,
		Tier:       model.Tier(req.Tier),
	})
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "userId and solutionId are required")
		return
	case errors.Is(err, service.ErrInvalidTier):
		writeError(w, r, http.StatusBadRequest, "INVALID_TIER", "tier must be one of: free registered pro")
		return
	case err != nil:
		writeInternalError(w, r, h.logger, "issue_token", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("token_issued",
			"subject", ent.Subject,
			"solution_id", ent.SolutionID,
			"tier", ent.Tier,
			"strategy", h.minter.Strategy(),
		)
	}

	writeJSON(w, status, dto.ToTokenResponse(ent))
}

// Validate handles POST /api/v1/tokens/validate.
// Unusable tokens get 401 with valid=false and a reason message.
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.engine.ValidateToken(r.Context(), req.Token, req.UserID)
	if err != nil {
		writeInternalError(w, r, h.logger, "validate_token", err)
		return
	}

	middleware.AddLogAttrs(r.Context(),
		slog.Bool("valid", res.Valid),
		slog.String("reason", string(res.Reason)),
	)
	if !res.Valid {
		writeJSON(w, http.StatusUnauthorized, dto.ValidateTokenResponse{
			Valid: false,
			Error: res.Reason.Message(),
		})
		return
	}

	remaining := res.QuotaRemaining
	writeJSON(w, http.StatusOK, dto.ValidateTokenResponse{
		Valid:          true,
		UserID:         res.Subject,
		SolutionID:     res.SolutionID,
		Tier:           res.Tier,
		UsageRemaining: &remaining,
	})
}
