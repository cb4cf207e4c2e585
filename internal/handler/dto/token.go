// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/quotagate/quotagate/internal/model"

// IssueTokenRequest represents the request body for issuing a token.
type IssueTokenRequest struct {
	UserID     string `json:"userId" validate:"required,max=200"`
	SolutionID string `json:"solutionId" validate:"required,max=100"`
	Tier       string `json:"tier,omitempty" validate:"omitempty,oneof=free registered pro"`
}

// TokenResponse represents an issued token.
type TokenResponse struct {
	Token      string     `json:"token"`
	UserID     string     `json:"userId"`
	SolutionID string     `json:"solutionId"`
	Tier       model.Tier `json:"tier"`
}

// ToTokenResponse converts an entitlement to TokenResponse.
func ToTokenResponse(ent *model.Entitlement) *TokenResponse {
	return &TokenResponse{
		Token:      ent.Token,
		UserID:     ent.Subject,
		SolutionID: ent.SolutionID,
		Tier:       ent.Tier,
	}
}

// ValidateTokenRequest represents the simple token validation request.
type ValidateTokenRequest struct {
	Token  string `json:"token" validate:"required,max=256"`
	UserID string `json:"userId,omitempty" validate:"max=200"`
}

// ValidateTokenResponse reports whether a token is usable. Quota fields are
// only present when the token is valid.
type ValidateTokenResponse struct {
	Valid          bool       `json:"valid"`
	Error          string     `json:"error,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	SolutionID     string     `json:"solutionId,omitempty"`
	Tier           model.Tier `json:"tier,omitempty"`
	UsageRemaining *int       `json:"usage_remaining,omitempty"`
}
