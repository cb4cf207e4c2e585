package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/cache"
)

// fakeLimiter allows a fixed number of calls per scope and key.
type fakeLimiter struct {
	mu    sync.Mutex
	limit int64
	calls map[string]int64
	seen  []cache.Limit
	err   error
}

func newFakeLimiter(limit int64) *fakeLimiter {
	return &fakeLimiter{limit: limit, calls: make(map[string]int64)}
}

func (f *fakeLimiter) Allow(_ context.Context, l cache.Limit) (*cache.RateLimitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, l)
	if f.err != nil {
		return nil, f.err
	}
	key := l.Scope + ":" + l.Key
	f.calls[key]++
	remaining := f.limit - f.calls[key]
	if remaining < 0 {
		return &cache.RateLimitResult{Allowed: false, RetryAfter: 2500 * time.Millisecond, ResetAt: time.Now().Add(3 * time.Second)}, nil
	}
	return &cache.RateLimitResult{Allowed: true, Remaining: remaining, ResetAt: time.Now().Add(time.Minute)}, nil
}

func (f *fakeLimiter) limits() []cache.Limit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cache.Limit(nil), f.seen...)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func publicConfig(limiter RateLimiter) RateLimitConfig {
	return RateLimitConfig{
		Logger:        discardLogger(),
		Limiter:       limiter,
		PublicEnabled: true,
		PublicRPS:     1,
		PublicBurst:   2,
		TokenRPM:      60,
		TokenBurst:    2,
	}
}

func TestRateLimitIP(t *testing.T) {
	t.Parallel()

	limiter := newFakeLimiter(2)
	handler := RateLimitIP(publicConfig(limiter))(okHandler())

	do := func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("203.0.113.7:4000", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	// A forged header must not open a fresh bucket.
	rec := do("203.0.113.7:4001", "198.51.100.99")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3 (rounded up)", got)
	}

	if rec := do("198.51.100.9:4000", ""); rec.Code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", rec.Code)
	}

	for _, l := range limiter.limits() {
		if l.Scope != cache.ScopeIP {
			t.Errorf("scope = %q, want %q", l.Scope, cache.ScopeIP)
		}
		if strings.Contains(l.Key, ":") {
			t.Errorf("key %q still carries the port", l.Key)
		}
	}
}

func TestRateLimitIP_Disabled(t *testing.T) {
	t.Parallel()

	limiter := newFakeLimiter(0)
	cfg := publicConfig(limiter)
	cfg.PublicEnabled = false
	handler := RateLimitIP(cfg)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/decisions", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if n := len(limiter.limits()); n != 0 {
		t.Errorf("limiter called %d times, want 0", n)
	}
}

func TestRateLimitToken(t *testing.T) {
	t.Parallel()

	limiter := newFakeLimiter(2)
	var bodies []string
	var mu sync.Mutex
	handler := RateLimitToken(publicConfig(limiter))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	do := func(body, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(body))
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	leaked := `{"token":" qg_leaked ","solution_id":"search"}`
	if rec := do(leaked, "203.0.113.1:1"); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	if rec := do(leaked, "203.0.113.2:1"); rec.Code != http.StatusOK {
		t.Fatalf("second status = %d, want 200", rec.Code)
	}
	if rec := do(leaked, "203.0.113.3:1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("same token from a third address status = %d, want 429", rec.Code)
	}
	if rec := do(`{"token":"qg_other"}`, "203.0.113.1:1"); rec.Code != http.StatusOK {
		t.Errorf("other token status = %d, want 200", rec.Code)
	}
	if rec := do(`not json`, "203.0.113.1:1"); rec.Code != http.StatusOK {
		t.Errorf("malformed body status = %d, want 200 (handler reports it)", rec.Code)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) == 0 || bodies[0] != leaked {
		t.Errorf("handler body = %q, want the original body", bodies)
	}
	if got := bodies[len(bodies)-1]; got != "not json" {
		t.Errorf("malformed body reached handler as %q", got)
	}

	for _, l := range limiter.limits() {
		if l.Scope != cache.ScopeToken {
			t.Errorf("scope = %q, want %q", l.Scope, cache.ScopeToken)
		}
		if l.Key == " qg_leaked " {
			t.Error("token key must be trimmed")
		}
	}
}

func TestPeekToken_KeepsReadError(t *testing.T) {
	t.Parallel()

	handler := MaxBodySize(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := peekToken(r); token != "" {
			t.Errorf("peekToken() = %q, want empty for an oversize body", token)
		}
		_, err := io.ReadAll(r.Body)
		if !IsBodyTooLarge(err) {
			t.Errorf("restored body error = %v, want MaxBytesError", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"qg_far_too_long"}`))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRateLimitSubject(t *testing.T) {
	t.Parallel()

	limiter := newFakeLimiter(1)
	handler := RateLimitSubject(RateLimitConfig{
		Logger:       discardLogger(),
		Limiter:      limiter,
		PartnerRPM:   60,
		PartnerBurst: 1,
	})(okHandler())

	do := func(subject string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", nil)
		if subject != "" {
			req = req.WithContext(auth.ContextWithIdentity(req.Context(), &auth.Identity{Subject: subject}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do("partner-1")
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.Code)
	}
	if got := first.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want 60", got)
	}

	if rec := do("partner-1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second status = %d, want 429", rec.Code)
	}
	if rec := do(""); rec.Code != http.StatusOK {
		t.Errorf("anonymous status = %d, want 200", rec.Code)
	}

	got := limiter.limits()
	if len(got) != 2 || got[0].Scope != cache.ScopeSubject || got[0].Rate != 1 {
		t.Errorf("limits = %+v, want two subject limits at 1 token/s", got)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	limiter := newFakeLimiter(0)
	limiter.err = errors.New("redis unavailable")

	cfg := publicConfig(limiter)
	cfg.PartnerRPM = 1
	cfg.PartnerBurst = 1

	for name, mw := range map[string]func(http.Handler) http.Handler{
		"ip":      RateLimitIP(cfg),
		"token":   RateLimitToken(cfg),
		"subject": RateLimitSubject(cfg),
	} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"token":"qg_x"}`))
		req = req.WithContext(auth.ContextWithIdentity(req.Context(), &auth.Identity{Subject: "p"}))
		rec := httptest.NewRecorder()
		mw(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", name, rec.Code)
		}
	}
	if n := len(limiter.limits()); n != 3 {
		t.Errorf("limiter called %d times, want 3", n)
	}
}

func TestGetClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"ipv4 with port", nil, "192.0.2.4:5555", "192.0.2.4"},
		{"ipv6 with port", nil, "[2001:db8::1]:443", "2001:db8::1"},
		{"already rewritten by RealIP", nil, "198.51.100.1", "198.51.100.1"},
		{"forwarded header ignored", map[string]string{"X-Forwarded-For": "203.0.113.7"}, "10.0.0.2:1234", "10.0.0.2"},
		{"real ip header ignored", map[string]string{"X-Real-IP": "203.0.113.7"}, "10.0.0.2:1234", "10.0.0.2"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
