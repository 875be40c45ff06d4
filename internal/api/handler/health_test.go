package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func pingOK(context.Context) error   { return nil }
func pingDown(context.Context) error { return errors.New("connection refused") }

func TestLiveness(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := NewHealthHandler().Liveness(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all up",
			checks:     []DependencyCheck{{Name: "mongodb", Ping: pingOK}, {Name: "redis", Ping: pingOK, Optional: true}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "optional down",
			checks:     []DependencyCheck{{Name: "mongodb", Ping: pingOK}, {Name: "redis", Ping: pingDown, Optional: true}},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
		},
		{
			name:       "required down",
			checks:     []DependencyCheck{{Name: "mongodb", Ping: pingDown}, {Name: "redis", Ping: pingOK, Optional: true}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unavailable",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/ready", nil), rec)

			if err := NewReadinessHandler(tc.checks...).Readiness(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			var body readinessResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Status != tc.wantBody {
				t.Fatalf("expected status %q, got %q", tc.wantBody, body.Status)
			}
			if len(body.Dependencies) != len(tc.checks) {
				t.Fatalf("expected %d dependencies, got %d", len(tc.checks), len(body.Dependencies))
			}
		})
	}
}
