package model

import "time"

// EntitlementState tracks whether signup finished minting the built-in entitlement.
type EntitlementState string

const (
	EntitlementStateReady   EntitlementState = "ready"
	EntitlementStatePending EntitlementState = "pending"
)

// User is the identity record for one subject.
type User struct {
	Subject    string `json:"subject"`
	Email      string `json:"email"`
	Tier       Tier   `json:"tier,omitempty"` // Optional override, empty when unset
	DailyUsage Usage  `json:"daily_usage"`

	EntitlementState     EntitlementState `json:"entitlement_state"`
	PendingSolutionID    string           `json:"-"`
	PendingAttempts      int              `json:"-"`
	PendingNextAttemptAt *time.Time       `json:"-"`
	PendingLastError     string           `json:"-"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// HasTierOverride returns true if the user row carries its own tier.
func (u *User) HasTierOverride() bool {
	return u.Tier != ""
}

// IsEntitlementPending returns true if the built-in entitlement is still owed.
func (u *User) IsEntitlementPending() bool {
	return u.EntitlementState == EntitlementStatePending
}
