package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{err: errors.New("down")}, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got %s", response.Status)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		db           HealthChecker
		cache        HealthChecker
		wantStatus   int
		wantPostgres string
		wantRedis    string
	}{
		{
			name:         "all healthy",
			db:           &mockHealthChecker{},
			cache:        &mockHealthChecker{},
			wantStatus:   http.StatusOK,
			wantPostgres: "ok",
			wantRedis:    "ok",
		},
		{
			name:         "redis disabled",
			db:           &mockHealthChecker{},
			wantStatus:   http.StatusOK,
			wantPostgres: "ok",
			wantRedis:    "disabled",
		},
		{
			name:         "database down",
			db:           &mockHealthChecker{err: errors.New("connection refused")},
			cache:        &mockHealthChecker{},
			wantStatus:   http.StatusServiceUnavailable,
			wantPostgres: "error",
			wantRedis:    "ok",
		},
		{
			name:         "redis down",
			db:           &mockHealthChecker{},
			cache:        &mockHealthChecker{err: errors.New("i/o timeout")},
			wantStatus:   http.StatusServiceUnavailable,
			wantPostgres: "ok",
			wantRedis:    "error",
		},
		{
			name:         "no database",
			wantStatus:   http.StatusServiceUnavailable,
			wantPostgres: "not configured",
			wantRedis:    "disabled",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthHandler(tt.db, tt.cache)
			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if strings.Contains(rec.Body.String(), "refused") || strings.Contains(rec.Body.String(), "timeout") {
				t.Errorf("readiness body leaks error detail: %s", rec.Body.String())
			}

			var response HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Checks["postgres"] != tt.wantPostgres {
				t.Errorf("postgres = %q, want %q", response.Checks["postgres"], tt.wantPostgres)
			}
			if response.Checks["redis"] != tt.wantRedis {
				t.Errorf("redis = %q, want %q", response.Checks["redis"], tt.wantRedis)
			}
		})
	}
}
