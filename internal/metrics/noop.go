package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveDecision is a no-op.
func (n *NoopRecorder) ObserveDecision(outcome, reason, tier string, duration time.Duration) {}

// IncUsageIncrement is a no-op.
func (n *NoopRecorder) IncUsageIncrement(scope string, applied bool) {}

// IncTokenMinted is a no-op.
func (n *NoopRecorder) IncTokenMinted(strategy, result string) {}

// IncTokenCacheHit is a no-op.
func (n *NoopRecorder) IncTokenCacheHit() {}

// IncTokenCacheMiss is a no-op.
func (n *NoopRecorder) IncTokenCacheMiss() {}

// IncEntitlementPending is a no-op.
func (n *NoopRecorder) IncEntitlementPending() {}

// IncEntitlementReconciled is a no-op.
func (n *NoopRecorder) IncEntitlementReconciled(status string) {}
