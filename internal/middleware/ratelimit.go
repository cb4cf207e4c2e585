package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/cache"
)

// RateLimiter takes one token from a bucket. Implemented by *cache.Cache.
type RateLimiter interface {
	Allow(ctx context.Context, l cache.Limit) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter

	// Public validation endpoints, per client IP and per presented token.
	PublicEnabled bool
	PublicRPS     int
	PublicBurst   int
	TokenRPM      int
	TokenBurst    int

	// Identity-authenticated endpoints, per subject.
	PartnerRPM   int
	PartnerBurst int
}

// RateLimitIP limits the public endpoints per client IP. The IP is taken from
// r.RemoteAddr only; proxy headers count only if the router trusts them and
// has rewritten RemoteAddr.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.PublicEnabled {
				next.ServeHTTP(w, r)
				return
			}
			lim := cache.PerSecond(cache.ScopeIP, getClientIP(r), cfg.PublicRPS, cfg.PublicBurst)
			cfg.enforce(w, r, next, lim, cfg.PublicRPS)
		})
	}
}

// RateLimitToken limits the public endpoints per presented entitlement token,
// so a leaked token cannot be replayed from many addresses at full speed.
// It reads the "token" field of the JSON body and restores the body.
func RateLimitToken(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.PublicEnabled || cfg.TokenRPM <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			token := peekToken(r)
			if token == "" {
				// The handler reports the malformed request.
				next.ServeHTTP(w, r)
				return
			}
			lim := cache.PerMinute(cache.ScopeToken, token, cfg.TokenRPM, cfg.TokenBurst)
			cfg.enforce(w, r, next, lim, cfg.TokenRPM)
		})
	}
}

// RateLimitSubject limits identity-authenticated requests per subject. Must
// run after Identity; anonymous requests pass through.
func RateLimitSubject(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := auth.SubjectFromContext(r.Context())
			if subject == "" {
				next.ServeHTTP(w, r)
				return
			}
			lim := cache.PerMinute(cache.ScopeSubject, subject, cfg.PartnerRPM, cfg.PartnerBurst)
			cfg.enforce(w, r, next, lim, cfg.PartnerRPM)
		})
	}
}

// enforce applies one bucket. Limiter errors fail open.
func (cfg RateLimitConfig) enforce(w http.ResponseWriter, r *http.Request, next http.Handler, lim cache.Limit, advertised int) {
	if cfg.Limiter == nil || lim.Disabled() {
		next.ServeHTTP(w, r)
		return
	}

	result, err := cfg.Limiter.Allow(r.Context(), lim)
	if err != nil {
		cfg.Logger.Error("rate limit check failed",
			slog.String("scope", lim.Scope),
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		next.ServeHTTP(w, r)
		return
	}

	setRateLimitHeaders(w, advertised, result.Remaining, result.ResetAt)

	if !result.Allowed {
		cfg.Logger.Warn("rate limit exceeded",
			slog.String("scope", lim.Scope),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.Int64("retry_after_ms", result.RetryAfter.Milliseconds()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		writeRateLimitError(w, r, result.RetryAfter)
		return
	}

	next.ServeHTTP(w, r)
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// writeRateLimitError writes a 429 Too Many Requests response.
func writeRateLimitError(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", seconds))
}

// getClientIP returns the host part of r.RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// peekToken returns the trimmed "token" field of a JSON body, or "". The body
// is always restored, read errors included, so the handler sees exactly what
// the client sent (or the same MaxBytesError).
func peekToken(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	body, err := io.ReadAll(r.Body)
	var rest io.Reader = bytes.NewReader(body)
	if err != nil {
		rest = io.MultiReader(rest, errReader{err})
	}
	r.Body = io.NopCloser(rest)
	if err != nil {
		return ""
	}

	var fields struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(body, &fields) != nil {
		return ""
	}
	return strings.TrimSpace(fields.Token)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
