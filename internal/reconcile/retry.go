package reconcile

import (
	"math/rand"
	"time"
)

// Retry delays for pending entitlements.
// Attempt 1: 30 s, Attempt 2: 2 min, Attempt 3: 10 min,
// Attempt 4: 1 hour, Attempt 5 and later: 6 hours
var retryDelays = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
}

// JitterFactor is the ±percentage of jitter applied to delays.
const JitterFactor = 0.2

// NextRetryDelay calculates the next retry delay with exponential backoff + jitter.
// attemptCount is the number of failed attempts so far (0 before the first failure).
// Pending entitlements are never abandoned; late attempts reuse the last delay.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]

	// Add ±20% jitter to prevent thundering herd
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// NextRetryAt calculates the time for the next retry attempt relative to now.
func NextRetryAt(now time.Time, attemptCount int) time.Time {
	return now.Add(NextRetryDelay(attemptCount))
}
