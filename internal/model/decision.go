package model

// Unlimited is the quota sentinel for tiers without a daily ceiling.
const Unlimited = -1

// DenyReason is a machine-readable explanation of a denied decision.
type DenyReason string

const (
	ReasonNone             DenyReason = ""
	ReasonInvalidToken     DenyReason = "invalid_token"
	ReasonSolutionMismatch DenyReason = "solution_mismatch"
	ReasonInactive         DenyReason = "inactive"
	ReasonLimitReached     DenyReason = "limit_reached"
	ReasonUserMismatch     DenyReason = "user_mismatch"
)

// Message returns the caller-facing text for the reason.
func (r DenyReason) Message() string {
	switch r {
	case ReasonInvalidToken:
		return "Invalid token"
	case ReasonSolutionMismatch:
		return "Token not valid for this solution"
	case ReasonInactive:
		return "Token is not active"
	case ReasonLimitReached:
		return "Daily limit already reached"
	case ReasonUserMismatch:
		return "Token does not match user"
	default:
		return ""
	}
}

// Decision is the result of evaluating one request against an entitlement.
type Decision struct {
	Allowed        bool
	Reason         DenyReason
	Subject        string
	Email          string
	SolutionID     string
	Tier           Tier
	Day            string // Usage day the decision was evaluated on
	DailyLimit     int    // Unlimited for pro
	Count          int    // Effective count for Day after any increment
	QuotaRemaining int    // Unlimited for pro
	LimitReached   bool
	Incremented    bool
}

// IsUnlimited returns true if the decision carries no finite quota.
func (d *Decision) IsUnlimited() bool {
	return d.DailyLimit == Unlimited
}
