//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "TEST_REDIS_URL")

	c, err := New(ctx, redisURL, Options{TokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, c
}

func TestIntegrationTokenKey_RoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)
	token := "qg_0123456789abcdef0123456789abcdef01234567"

	if _, ok, err := c.GetTokenKey(ctx, token); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	want := model.EntitlementKey{Subject: "u1", SolutionID: "s1"}
	if err := c.SetTokenKey(ctx, token, want); err != nil {
		t.Fatalf("SetTokenKey failed: %v", err)
	}

	got, ok, err := c.GetTokenKey(ctx, token)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("GetTokenKey = %+v, want %+v", got, want)
	}

	ttl, err := c.Client().TTL(ctx, tokenCacheKey(token)).Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}

	if err := c.DeleteTokenKey(ctx, token); err != nil {
		t.Fatalf("DeleteTokenKey failed: %v", err)
	}
	if _, ok, _ := c.GetTokenKey(ctx, token); ok {
		t.Error("expected miss after delete")
	}
}

func TestIntegrationTokenKey_CorruptEntryIsMiss(t *testing.T) {
	ctx, c := newCacheTestEnv(t)
	token := "qg_corrupt"

	if err := c.Client().Set(ctx, tokenCacheKey(token), "not json", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := c.GetTokenKey(ctx, token); ok || err != nil {
		t.Errorf("corrupt entry should be a miss, got ok=%v err=%v", ok, err)
	}
}

func TestIntegrationRateLimit_Burst(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	const burst = 3
	limit := PerSecond(ScopeIP, "203.0.113.7", 1, burst)
	for i := 0; i < burst; i++ {
		res, err := c.Allow(ctx, limit)
		if err != nil {
			t.Fatalf("Allow failed: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	res, err := c.Allow(ctx, limit)
	if err != nil {
		t.Fatalf("Allow failed: %v", err)
	}
	if res.Allowed {
		t.Error("request beyond burst should be limited")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want within (0, 1s]", res.RetryAfter)
	}

	ttl, err := c.Client().PTTL(ctx, limit.redisKey()).Result()
	if err != nil {
		t.Fatalf("PTTL failed: %v", err)
	}
	if ttl <= 0 || ttl > limit.refill() {
		t.Errorf("bucket TTL = %v, want within (0, %v]", ttl, limit.refill())
	}

	for name, other := range map[string]Limit{
		"other ip":             PerSecond(ScopeIP, "203.0.113.8", 1, burst),
		"same key other scope": PerSecond(ScopeToken, "203.0.113.7", 1, burst),
	} {
		res, err := c.Allow(ctx, other)
		if err != nil {
			t.Fatalf("%s: Allow failed: %v", name, err)
		}
		if !res.Allowed {
			t.Errorf("%s must have its own bucket", name)
		}
	}
}

func TestIntegrationRateLimit_ReturnsRedisErrors(t *testing.T) {
	_, c := newCacheTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Allow(ctx, PerSecond(ScopeIP, "203.0.113.7", 1, 1)); err == nil {
		t.Error("Allow with a cancelled context should return an error")
	}
}
