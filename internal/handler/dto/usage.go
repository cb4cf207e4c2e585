package dto

import (
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
)

// UsageRequest identifies the user whose built-in quota is consulted.
type UsageRequest struct {
	UserEmail string `json:"userEmail" validate:"required,email,max=254"`
}

// UsageUser describes the user in a limits response.
type UsageUser struct {
	Email    string     `json:"email"`
	Tier     model.Tier `json:"tier"`
	TierName string     `json:"tierName"`
}

// Limits is the quota summary for today.
type Limits struct {
	DailyLimit        int  `json:"dailyLimit"`
	SearchesUsed      int  `json:"searchesUsed"`
	SearchesRemaining int  `json:"searchesRemaining"`
	LimitReached      bool `json:"limitReached"`
	CanUpgrade        bool `json:"canUpgrade"`
}

// UsageSnapshot is today's counter as reported after a check or increment.
type UsageSnapshot struct {
	SearchesUsed int        `json:"searchesUsed"`
	DailyLimit   int        `json:"dailyLimit"`
	LimitReached bool       `json:"limitReached"`
	Tier         model.Tier `json:"tier"`
}

// CheckLimitsResponse is returned by the check endpoint.
type CheckLimitsResponse struct {
	Success bool          `json:"success"`
	User    UsageUser     `json:"user"`
	Limits  Limits        `json:"limits"`
	Usage   UsageSnapshot `json:"usage"`
}

// IncrementUsageResponse is returned by the increment endpoint, with 429
// when the increment was refused.
type IncrementUsageResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	Usage   UsageSnapshot `json:"usage"`
}

// UserNotFoundResponse is the 404 body of the usage endpoints.
type UserNotFoundResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToUsageSnapshot converts a decision to a usage snapshot.
func ToUsageSnapshot(d model.Decision) UsageSnapshot {
	return UsageSnapshot{
		SearchesUsed: d.Count,
		DailyLimit:   d.DailyLimit,
		LimitReached: d.LimitReached,
		Tier:         d.Tier,
	}
}

// ToCheckLimitsResponse converts a check-only decision to its wire shape.
func ToCheckLimitsResponse(d model.Decision) *CheckLimitsResponse {
	return &CheckLimitsResponse{
		Success: true,
		User: UsageUser{
			Email:    d.Email,
			Tier:     d.Tier,
			TierName: d.Tier.DisplayName(),
		},
		Limits: Limits{
			DailyLimit:        d.DailyLimit,
			SearchesUsed:      d.Count,
			SearchesRemaining: d.QuotaRemaining,
			LimitReached:      d.LimitReached,
			CanUpgrade:        quota.CanUpgrade(d.Tier),
		},
		Usage: ToUsageSnapshot(d),
	}
}
