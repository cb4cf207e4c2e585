package handler

import (
	"log/slog"
	"net/http"

	"github.com/quotagate/quotagate/internal/handler/dto"
	"github.com/quotagate/quotagate/internal/middleware"
	"github.com/quotagate/quotagate/internal/service"
)

// DecisionHandler exposes the decision engine to solutions.
type DecisionHandler struct {
	engine *service.Engine
	logger *slog.Logger
}

// NewDecisionHandler creates a new DecisionHandler.
func NewDecisionHandler(engine *service.Engine, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{engine: engine, logger: logger}
}

// Decide handles POST /api/v1/decisions.
// Every evaluated decision, allowed or denied, is a 200. A 500 means no
// decision was reached and callers must treat it as a deny.
func (h *DecisionHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req dto.DecisionRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	d, err := h.engine.Decide(r.Context(), service.DecideInput{
		Token:      req.Token,
		SolutionID: req.SolutionID,
		Action:     req.Action,
		Mutate:     !req.CheckOnly,
	})
	if err != nil {
		writeInternalError(w, r, h.logger, "decide", err)
		return
	}

	middleware.AddLogAttrs(r.Context(),
		slog.String("solution_id", req.SolutionID),
		slog.Bool("allowed", d.Allowed),
		slog.String("reason", string(d.Reason)),
		slog.String("tier", string(d.Tier)),
	)
	writeJSON(w, http.StatusOK, dto.ToDecisionResponse(d))
}
