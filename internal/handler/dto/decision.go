package dto

import "github.com/quotagate/quotagate/internal/model"

// DecisionRequest asks whether a token may perform an action on a solution.
type DecisionRequest struct {
	Token      string `json:"token" validate:"required,max=256"`
	Action     string `json:"action,omitempty" validate:"max=100"`
	SolutionID string `json:"solution_id" validate:"required,max=100"`
	CheckOnly  bool   `json:"check_only,omitempty"`
}

// DecisionUser is the user summary embedded in a decision.
type DecisionUser struct {
	Email string     `json:"email"`
	Tier  model.Tier `json:"tier"`
}

// DecisionResponse is returned with 200 for every evaluated decision.
// Tokens that cannot be used for the solution carry Error and SolutionID only.
type DecisionResponse struct {
	Allowed        bool          `json:"allowed"`
	Reason         string        `json:"reason,omitempty"`
	Error          string        `json:"error,omitempty"`
	SolutionID     string        `json:"solution_id,omitempty"`
	UserEmail      string        `json:"user_email,omitempty"`
	AccessTier     model.Tier    `json:"access_tier,omitempty"`
	QuotaRemaining *int          `json:"quota_remaining,omitempty"`
	User           *DecisionUser `json:"user,omitempty"`
}

// ToDecisionResponse converts a decision to its wire shape.
func ToDecisionResponse(d model.Decision) *DecisionResponse {
	switch d.Reason {
	case model.ReasonInvalidToken, model.ReasonSolutionMismatch, model.ReasonInactive:
		return &DecisionResponse{
			Allowed:    false,
			Reason:     string(d.Reason),
			Error:      d.Reason.Message(),
			SolutionID: d.SolutionID,
		}
	}

	remaining := d.QuotaRemaining
	return &DecisionResponse{
		Allowed:        d.Allowed,
		Reason:         string(d.Reason),
		SolutionID:     d.SolutionID,
		UserEmail:      d.Email,
		AccessTier:     d.Tier,
		QuotaRemaining: &remaining,
		User:           &DecisionUser{Email: d.Email, Tier: d.Tier},
	}
}
