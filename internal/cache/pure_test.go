package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestLimit_RedisKey(t *testing.T) {
	t.Parallel()

	ip := PerSecond(ScopeIP, "203.0.113.7", 50, 100)
	token := PerSecond(ScopeToken, "203.0.113.7", 50, 100)

	if !strings.HasPrefix(ip.redisKey(), "ratelimit:ip:") {
		t.Errorf("ip key %q has wrong prefix", ip.redisKey())
	}
	if ip.redisKey() == token.redisKey() {
		t.Error("scopes must not share buckets for the same raw key")
	}
	if strings.Contains(ip.redisKey(), "203.0.113.7") {
		t.Errorf("key %q leaks the raw identifier", ip.redisKey())
	}
	if ip.redisKey() != PerSecond(ScopeIP, "203.0.113.7", 1, 1).redisKey() {
		t.Error("key must not depend on the rate")
	}
	if got := len(keyHash("auth0|64f1c2")); got != 16 {
		t.Errorf("keyHash length = %d, want 16", got)
	}
}

func TestLimit_RatesAndRefill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		limit      Limit
		wantRate   float64
		wantRefill time.Duration
		disabled   bool
	}{
		{"per second", PerSecond(ScopeIP, "a", 50, 100), 50, 3 * time.Second, false},
		{"per minute", PerMinute(ScopeSubject, "a", 120, 20), 2, 11 * time.Second, false},
		{"zero rate", PerSecond(ScopeIP, "a", 0, 10), 0, 0, true},
		{"zero burst", PerMinute(ScopeToken, "a", 60, 0), 1, 0, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.limit.Rate != tt.wantRate {
				t.Errorf("Rate = %v, want %v", tt.limit.Rate, tt.wantRate)
			}
			if tt.limit.Disabled() != tt.disabled {
				t.Errorf("Disabled() = %v, want %v", tt.limit.Disabled(), tt.disabled)
			}
			if !tt.disabled && tt.limit.refill() != tt.wantRefill {
				t.Errorf("refill() = %v, want %v", tt.limit.refill(), tt.wantRefill)
			}
		})
	}
}

func TestAllow_DisabledSkipsRedis(t *testing.T) {
	t.Parallel()

	// A nil client would panic if Allow reached Redis.
	c := &Cache{}
	res, err := c.Allow(context.Background(), PerSecond(ScopeIP, "a", 0, 5))
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if !res.Allowed || res.Remaining != 5 {
		t.Errorf("Allow() = %+v, want allowed with 5 remaining", res)
	}
}

func TestTokenCacheKey_NeverContainsToken(t *testing.T) {
	t.Parallel()

	token := "qg_0123456789abcdef0123456789abcdef01234567"
	key := tokenCacheKey(token)

	if !strings.HasPrefix(key, tokenKeyPrefix) {
		t.Errorf("key %q missing prefix %q", key, tokenKeyPrefix)
	}
	if strings.Contains(key, token[3:]) {
		t.Errorf("key %q leaks the raw token", key)
	}
	if key != tokenCacheKey(token) {
		t.Error("key derivation must be stable")
	}
	if key == tokenCacheKey(token+"0") {
		t.Error("different tokens must map to different keys")
	}
}
