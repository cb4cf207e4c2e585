// Package model defines the quota domain: entitlements, users and decisions.
package model

import (
	"slices"
	"time"
)

// Tier is the named access level governing the daily quota.
type Tier string

// Tier constants.
const (
	TierFree       Tier = "free"
	TierRegistered Tier = "registered"
	TierPro        Tier = "pro"
)

// ValidTiers contains all valid tier values.
var ValidTiers = []Tier{TierFree, TierRegistered, TierPro}

// IsValid reports whether the tier is one the system can produce.
func (t Tier) IsValid() bool {
	return slices.Contains(ValidTiers, t)
}

// DisplayName returns the human-readable tier name.
func (t Tier) DisplayName() string {
	switch t {
	case TierFree:
		return "Free"
	case TierRegistered:
		return "Registered"
	case TierPro:
		return "Pro"
	default:
		return "Unknown"
	}
}

// EntitlementStatus is the activation state of an entitlement.
type EntitlementStatus string

const (
	StatusActive   EntitlementStatus = "active"
	StatusInactive EntitlementStatus = "inactive"
)

// EntitlementKey identifies an entitlement.
type EntitlementKey struct {
	Subject    string
	SolutionID string
}

// Entitlement grants a subject access to one solution under one tier.
type Entitlement struct {
	ID              string            `json:"id"`
	Subject         string            `json:"subject"`
	SolutionID      string            `json:"solution_id"`
	Token           string            `json:"-"` // Never serialize
	Tier            Tier              `json:"tier"`
	DailyUsageCount int               `json:"daily_usage_count"`
	LastUsageDate   string            `json:"last_usage_date"`
	Status          EntitlementStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Key returns the composite key of the entitlement.
func (e *Entitlement) Key() EntitlementKey {
	return EntitlementKey{Subject: e.Subject, SolutionID: e.SolutionID}
}

// IsActive returns true if the entitlement may be used.
func (e *Entitlement) IsActive() bool {
	return e.Status == StatusActive
}

// Usage returns the stored usage counter as-is. Callers must normalize it.
func (e *Entitlement) Usage() Usage {
	return Usage{Date: e.LastUsageDate, Count: e.DailyUsageCount}
}
