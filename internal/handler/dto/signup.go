package dto

import "github.com/quotagate/quotagate/internal/model"

// SignupRequest optionally overrides the email carried by the identity token.
type SignupRequest struct {
	Email string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

// SignupResponse reports the user and the state of the built-in entitlement.
type SignupResponse struct {
	UserID            string         `json:"userId"`
	Email             string         `json:"email"`
	Created           bool           `json:"created"`
	EntitlementStatus string         `json:"entitlement_status"`
	Entitlement       *TokenResponse `json:"entitlement,omitempty"`
}

// Entitlement status values reported by signup.
const (
	EntitlementStatusReady   = "ready"
	EntitlementStatusPending = "pending"
)

// ToSignupResponse builds the signup response.
func ToSignupResponse(user *model.User, ent *model.Entitlement, created, pending bool) *SignupResponse {
	resp := &SignupResponse{
		UserID:            user.Subject,
		Email:             user.Email,
		Created:           created,
		EntitlementStatus: EntitlementStatusReady,
	}
	if pending {
		resp.EntitlementStatus = EntitlementStatusPending
	}
	if ent != nil {
		resp.Entitlement = ToTokenResponse(ent)
	}
	return resp
}
