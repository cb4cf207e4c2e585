package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit scopes. Each scope has its own key space, so one caller can be
// limited per client IP and per token at the same time.
const (
	ScopeIP      = "ip"
	ScopeSubject = "subject"
	ScopeToken   = "token"
)

const rateLimitPrefix = "ratelimit:"

// Limit describes one token bucket. Key is the raw identifier (IP, subject,
// token); it is hashed before it reaches Redis.
type Limit struct {
	Scope string
	Key   string
	Rate  float64 // tokens per second
	Burst int
}

// PerSecond builds a limit refilling n tokens per second.
func PerSecond(scope, key string, n, burst int) Limit {
	return Limit{Scope: scope, Key: key, Rate: float64(n), Burst: burst}
}

// PerMinute builds a limit refilling n tokens per minute.
func PerMinute(scope, key string, n, burst int) Limit {
	return Limit{Scope: scope, Key: key, Rate: float64(n) / 60, Burst: burst}
}

// Disabled reports whether the limit lets every request through.
func (l Limit) Disabled() bool {
	return l.Rate <= 0 || l.Burst <= 0
}

func (l Limit) redisKey() string {
	return rateLimitPrefix + l.Scope + ":" + keyHash(l.Key)
}

// refill is how long an empty bucket takes to fill up again. An idle key
// holds no information after that, so it doubles as the key TTL.
func (l Limit) refill() time.Duration {
	return time.Duration(float64(l.Burst)/l.Rate*float64(time.Second)) + time.Second
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time // when the bucket is full again
	RetryAfter time.Duration
}

// tokenBucketScript refills and takes one token atomically. Time comes from
// the Redis server so API replicas with skewed clocks share one bucket.
// Returns {allowed, wait_ms, tokens_left, full_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local t = redis.call('TIME')
local now_ms = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
	tokens = burst
	ts = now_ms
end

tokens = math.min(burst, tokens + math.max(0, now_ms - ts) * rate / 1000)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait_ms = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now_ms)
redis.call('PEXPIRE', key, ttl_ms)

return {allowed, wait_ms, math.floor(tokens), math.ceil((burst - tokens) * 1000 / rate)}
`)

// Allow takes one token from the bucket described by l. Redis errors are
// returned; the caller decides whether to fail open.
func (c *Cache) Allow(ctx context.Context, l Limit) (*RateLimitResult, error) {
	if l.Disabled() {
		return &RateLimitResult{Allowed: true, Remaining: int64(l.Burst), ResetAt: time.Now()}, nil
	}

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{l.redisKey()},
		l.Rate, l.Burst, l.refill().Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", l.Scope, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit %s: unexpected script reply %v", l.Scope, res)
	}

	now := time.Now()
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// keyHash is a truncated SHA256 of a limiter key. Raw IPs, subjects and
// tokens are never stored.
func keyHash(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:8])
}
