package dto

import (
	"time"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/model"
)

// EntitlementResponse is an entitlement as shown to operators. The token is
// reduced to its fingerprint.
type EntitlementResponse struct {
	ID               string                  `json:"id"`
	Subject          string                  `json:"subject"`
	SolutionID       string                  `json:"solution_id"`
	TokenFingerprint string                  `json:"token_fingerprint"`
	Tier             model.Tier              `json:"tier"`
	Status           model.EntitlementStatus `json:"status"`
	UsageDate        string                  `json:"usage_date"`
	UsageCount       int                     `json:"usage_count"`
	DailyLimit       int                     `json:"daily_limit"`
	QuotaRemaining   int                     `json:"quota_remaining"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// EntitlementListResponse wraps a subject's entitlements.
type EntitlementListResponse struct {
	Subject string                `json:"subject"`
	Data    []EntitlementResponse `json:"data"`
}

// UpdateEntitlementStatusRequest activates or deactivates an entitlement.
type UpdateEntitlementStatusRequest struct {
	Subject    string `json:"subject" validate:"required,max=200"`
	SolutionID string `json:"solution_id" validate:"required,max=100"`
	Status     string `json:"status" validate:"required,oneof=active inactive"`
}

// ToEntitlementResponse converts an entitlement with its effective tier and
// normalized usage.
func ToEntitlementResponse(ent *model.Entitlement, tier model.Tier, usage model.Usage, limit, remaining int) EntitlementResponse {
	return EntitlementResponse{
		ID:               ent.ID,
		Subject:          ent.Subject,
		SolutionID:       ent.SolutionID,
		TokenFingerprint: auth.Fingerprint(ent.Token),
		Tier:             tier,
		Status:           ent.Status,
		UsageDate:        usage.Date,
		UsageCount:       usage.Count,
		DailyLimit:       limit,
		QuotaRemaining:   remaining,
		CreatedAt:        ent.CreatedAt,
		UpdatedAt:        ent.UpdatedAt,
	}
}
