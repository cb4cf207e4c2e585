package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMatchOrigin(t *testing.T) {
	t.Parallel()

	allowed := []string{"https://Console.QuotaGate.io", "*.partner.example"}
	exact := map[string]bool{"https://console.quotagate.io": true}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://console.quotagate.io", true},
		{"HTTPS://CONSOLE.QUOTAGATE.IO", true},
		{"https://search.partner.example", true},
		{"https://a.b.partner.example", true},
		{"https://.partner.example", false},
		{"https://notpartner.example", false},
		{"https://partner.example", false},
		{"https://console.quotagate.io.evil.test", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.origin, func(t *testing.T) {
			t.Parallel()
			if got := matchOrigin(tt.origin, exact, allowed); got != tt.want {
				t.Errorf("matchOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

// corsRequest sends a request through CORS with the default quota API policy.
func corsRequest(t *testing.T, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()

	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*.partner.example"}

	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(method, "/api/v1/decisions", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORS_SolutionFrontendPreflight(t *testing.T) {
	t.Parallel()

	rec := corsRequest(t, http.MethodOptions, "https://search.partner.example", true)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":  "https://search.partner.example",
		"Access-Control-Allow-Methods": "GET, POST, PATCH, OPTIONS",
		"Access-Control-Max-Age":       "600",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q, want Authorization", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("credentials must not be allowed with wildcard origins")
	}
}

func TestCORS_ExposesQuotaHeaders(t *testing.T) {
	t.Parallel()

	rec := corsRequest(t, http.MethodPost, "https://search.partner.example", false)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want the handler's 418", rec.Code)
	}
	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, h := range []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After"} {
		if !strings.Contains(exposed, h) {
			t.Errorf("Access-Control-Expose-Headers = %q, missing %s", exposed, h)
		}
	}
	if vary := rec.Header().Values("Vary"); len(vary) == 0 || vary[0] != "Origin" {
		t.Errorf("Vary = %v, want Origin", vary)
	}
}

func TestCORS_UnlistedOrigins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
	}{
		{"preflight refused", http.MethodOptions, "https://evil.test", true, http.StatusForbidden},
		{"simple request served without CORS headers", http.MethodPost, "https://evil.test", false, http.StatusTeapot},
		{"plain OPTIONS reaches the handler", http.MethodOptions, "https://evil.test", false, http.StatusTeapot},
		{"server-to-server call has no origin", http.MethodPost, "", false, http.StatusTeapot},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := corsRequest(t, tt.method, tt.origin, tt.preflight)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
			}
		})
	}
}
