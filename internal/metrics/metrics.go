// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Decision outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Mint results.
const (
	MintCreated  = "created"
	MintExisting = "existing"
	MintFailed   = "failed"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Decision engine metrics
	ObserveDecision(outcome, reason, tier string, duration time.Duration)
	IncUsageIncrement(scope string, applied bool) // scope: "entitlement" or "user"

	// Token metrics
	IncTokenMinted(strategy, result string)
	IncTokenCacheHit()
	IncTokenCacheMiss()

	// Signup reconciliation metrics
	IncEntitlementPending()
	IncEntitlementReconciled(status string) // status: "success" or "failed"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
