// Package testutil holds shared helpers and factories for tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quotagate/quotagate/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731731

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// Today is the fixed usage day used by test clocks.
const Today = "2026-10-17"

// Yesterday is the usage day before Today.
const Yesterday = "2026-10-16"

// Clock returns a fixed wall clock at noon UTC on Today.
func Clock() func() time.Time {
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return fixed }
}

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestEntitlement creates an active entitlement with sensible defaults.
func NewTestEntitlement(t testing.TB, subject, solutionID string, tier model.Tier) *model.Entitlement {
	t.Helper()
	now := time.Now().UTC()
	return &model.Entitlement{
		ID:              UniqueID("ent"),
		Subject:         subject,
		SolutionID:      solutionID,
		Token:           fmt.Sprintf("qg_%032x", seq.Add(1)),
		Tier:            tier,
		DailyUsageCount: 0,
		LastUsageDate:   Today,
		Status:          model.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewTestEntitlementWithUsage creates an entitlement with a stored counter.
func NewTestEntitlementWithUsage(t testing.TB, subject, solutionID string, tier model.Tier, date string, count int) *model.Entitlement {
	t.Helper()
	e := NewTestEntitlement(t, subject, solutionID, tier)
	e.LastUsageDate = date
	e.DailyUsageCount = count
	return e
}

// NewTestUser creates a user with sensible defaults.
func NewTestUser(t testing.TB, subject string) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		Subject:          subject,
		Email:            subject + "@example.com",
		EntitlementState: model.EntitlementStateReady,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewTestUserWithTier creates a user carrying a tier override.
func NewTestUserWithTier(t testing.TB, subject string, tier model.Tier) *model.User {
	t.Helper()
	u := NewTestUser(t, subject)
	u.Tier = tier
	return u
}
