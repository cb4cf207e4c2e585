// Package quota holds the daily quota policy and the day-rollover rule.
package quota

import (
	"github.com/quotagate/quotagate/internal/model"
)

// Daily limits per tier. Free and registered currently share a limit and
// differ only in upgrade messaging; both stay distinct tiers.
var dailyLimits = map[model.Tier]int{
	model.TierFree:       10,
	model.TierRegistered: 10,
	model.TierPro:        model.Unlimited,
}

// DailyLimit returns the daily limit for a tier, or model.Unlimited.
// Unknown tiers get the most restrictive finite limit.
func DailyLimit(tier model.Tier) int {
	if limit, ok := dailyLimits[tier]; ok {
		return limit
	}
	return mostRestrictive()
}

// IsUnlimited reports whether the tier has no daily ceiling.
func IsUnlimited(tier model.Tier) bool {
	return DailyLimit(tier) == model.Unlimited
}

// CanUpgrade reports whether a higher tier exists for the caller.
func CanUpgrade(tier model.Tier) bool {
	return !IsUnlimited(tier)
}

// Remaining returns max(0, limit-count), or model.Unlimited for unlimited limits.
func Remaining(limit, count int) int {
	if limit == model.Unlimited {
		return model.Unlimited
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

func mostRestrictive() int {
	lowest := -1
	for _, limit := range dailyLimits {
		if limit == model.Unlimited {
			continue
		}
		if lowest == -1 || limit < lowest {
			lowest = limit
		}
	}
	if lowest == -1 {
		return 0
	}
	return lowest
}
