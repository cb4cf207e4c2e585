package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotagate/quotagate/internal/cache"
)

// keyRecorder allows every request and remembers the bucket keys it saw.
type keyRecorder struct {
	mu   sync.Mutex
	keys map[string][]string
}

func (k *keyRecorder) Allow(_ context.Context, l cache.Limit) (*cache.RateLimitResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.keys == nil {
		k.keys = make(map[string][]string)
	}
	k.keys[l.Scope] = append(k.keys[l.Scope], l.Key)
	return &cache.RateLimitResult{Allowed: true, Remaining: 99, ResetAt: time.Now().Add(time.Second)}, nil
}

func (k *keyRecorder) scope(name string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.keys[name]...)
}

func TestRouter_ClientIPForRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		trustProxy bool
		wantKey    string
	}{
		{"proxy headers ignored by default", false, "10.0.0.2"},
		{"proxy headers honored behind a trusted proxy", true, "203.0.113.7"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := &keyRecorder{}
			env := newAPIEnvWith(t, envOptions{trustProxy: tt.trustProxy, limiter: limiter})

			req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions",
				strings.NewReader(`{"token":"qg_unknown","solution_id":"search"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Forwarded-For", "203.0.113.7")
			req.RemoteAddr = "10.0.0.2:1234"
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, []string{tt.wantKey}, limiter.scope(cache.ScopeIP))
			assert.Equal(t, []string{"qg_unknown"}, limiter.scope(cache.ScopeToken))
		})
	}
}
