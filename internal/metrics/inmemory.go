package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	DecisionsAllowed      uint64
	DecisionsDenied       uint64
	DecisionsErrored      uint64
	IncrementsApplied     uint64
	IncrementsRefused     uint64
	TokensCreated         uint64
	TokensExisting        uint64
	TokensFailed          uint64
	TokenCacheHits        uint64
	TokenCacheMisses      uint64
	EntitlementsPending   uint64
	ReconcileSucceeded    uint64
	ReconcileFailed       uint64
	DecisionDurationTotal int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	decisionsAllowed      uint64
	decisionsDenied       uint64
	decisionsErrored      uint64
	incrementsApplied     uint64
	incrementsRefused     uint64
	tokensCreated         uint64
	tokensExisting        uint64
	tokensFailed          uint64
	tokenCacheHits        uint64
	tokenCacheMisses      uint64
	entitlementsPending   uint64
	reconcileSucceeded    uint64
	reconcileFailed       uint64
	decisionDurationTotal int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		DecisionsAllowed:      atomic.LoadUint64(&m.decisionsAllowed),
		DecisionsDenied:       atomic.LoadUint64(&m.decisionsDenied),
		DecisionsErrored:      atomic.LoadUint64(&m.decisionsErrored),
		IncrementsApplied:     atomic.LoadUint64(&m.incrementsApplied),
		IncrementsRefused:     atomic.LoadUint64(&m.incrementsRefused),
		TokensCreated:         atomic.LoadUint64(&m.tokensCreated),
		TokensExisting:        atomic.LoadUint64(&m.tokensExisting),
		TokensFailed:          atomic.LoadUint64(&m.tokensFailed),
		TokenCacheHits:        atomic.LoadUint64(&m.tokenCacheHits),
		TokenCacheMisses:      atomic.LoadUint64(&m.tokenCacheMisses),
		EntitlementsPending:   atomic.LoadUint64(&m.entitlementsPending),
		ReconcileSucceeded:    atomic.LoadUint64(&m.reconcileSucceeded),
		ReconcileFailed:       atomic.LoadUint64(&m.reconcileFailed),
		DecisionDurationTotal: atomic.LoadInt64(&m.decisionDurationTotal),
	}
}

// ObserveDecision counts a decision by outcome.
func (m *InMemoryRecorder) ObserveDecision(outcome, reason, tier string, duration time.Duration) {
	switch outcome {
	case OutcomeAllowed:
		atomic.AddUint64(&m.decisionsAllowed, 1)
	case OutcomeDenied:
		atomic.AddUint64(&m.decisionsDenied, 1)
	default:
		atomic.AddUint64(&m.decisionsErrored, 1)
	}
	atomic.AddInt64(&m.decisionDurationTotal, duration.Nanoseconds())
}

// IncUsageIncrement counts applied and refused increments.
func (m *InMemoryRecorder) IncUsageIncrement(scope string, applied bool) {
	if applied {
		atomic.AddUint64(&m.incrementsApplied, 1)
		return
	}
	atomic.AddUint64(&m.incrementsRefused, 1)
}

// IncTokenMinted counts mint attempts by result.
func (m *InMemoryRecorder) IncTokenMinted(strategy, result string) {
	switch result {
	case MintCreated:
		atomic.AddUint64(&m.tokensCreated, 1)
	case MintExisting:
		atomic.AddUint64(&m.tokensExisting, 1)
	default:
		atomic.AddUint64(&m.tokensFailed, 1)
	}
}

// IncTokenCacheHit increments the token cache hit counter.
func (m *InMemoryRecorder) IncTokenCacheHit() {
	atomic.AddUint64(&m.tokenCacheHits, 1)
}

// IncTokenCacheMiss increments the token cache miss counter.
func (m *InMemoryRecorder) IncTokenCacheMiss() {
	atomic.AddUint64(&m.tokenCacheMisses, 1)
}

// IncEntitlementPending increments the pending entitlement counter.
func (m *InMemoryRecorder) IncEntitlementPending() {
	atomic.AddUint64(&m.entitlementsPending, 1)
}

// IncEntitlementReconciled counts reconcile attempts by status.
func (m *InMemoryRecorder) IncEntitlementReconciled(status string) {
	if status == "success" {
		atomic.AddUint64(&m.reconcileSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.reconcileFailed, 1)
}
