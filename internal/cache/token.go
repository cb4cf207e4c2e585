package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/model"
)

const (
	// tokenKeyPrefix is the Redis key prefix for token resolution entries.
	tokenKeyPrefix = "token:key:"
	// DefaultTokenTTL is the default time-to-live for cached token entries.
	DefaultTokenTTL = 10 * time.Minute
)

// cachedTokenKey is the entitlement key stored in Redis. Only the key is
// cached; tier, status and usage are always read from the store.
type cachedTokenKey struct {
	Subject    string `json:"subject"`
	SolutionID string `json:"solution_id"`
}

// tokenCacheKey derives the Redis key. Raw tokens never reach Redis.
func tokenCacheKey(token string) string {
	return tokenKeyPrefix + auth.Fingerprint(token)
}

// GetTokenKey returns the entitlement key a token resolves to.
// ok is false on a cache miss.
func (c *Cache) GetTokenKey(ctx context.Context, token string) (model.EntitlementKey, bool, error) {
	data, err := c.client.Get(ctx, tokenCacheKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.EntitlementKey{}, false, nil
	}
	if err != nil {
		return model.EntitlementKey{}, false, fmt.Errorf("get token key: %w", err)
	}

	var cached cachedTokenKey
	if err := json.Unmarshal(data, &cached); err != nil || cached.Subject == "" || cached.SolutionID == "" {
		// Corrupted cache entry - treat as miss
		return model.EntitlementKey{}, false, nil //nolint:nilerr
	}

	return model.EntitlementKey{Subject: cached.Subject, SolutionID: cached.SolutionID}, true, nil
}

// SetTokenKey caches the entitlement key for a token.
func (c *Cache) SetTokenKey(ctx context.Context, token string, key model.EntitlementKey) error {
	data, err := json.Marshal(cachedTokenKey{Subject: key.Subject, SolutionID: key.SolutionID})
	if err != nil {
		return fmt.Errorf("marshal token key: %w", err)
	}

	return c.client.Set(ctx, tokenCacheKey(token), data, c.tokenTTL).Err()
}

// DeleteTokenKey removes a cached token entry.
func (c *Cache) DeleteTokenKey(ctx context.Context, token string) error {
	return c.client.Del(ctx, tokenCacheKey(token)).Err()
}
