package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"expired token", domain.ErrTokenExpired, http.StatusUnauthorized, "TOKEN_EXPIRED"},
		{"wrapped credentials", fmt.Errorf("login: %w", domain.ErrInvalidCredentials), http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"disabled", domain.ErrAccountDisabled, http.StatusForbidden, "ACCOUNT_DISABLED"},
		{"forbidden", domain.ErrNotAuthorized, http.StatusForbidden, "NOT_AUTHORIZED"},
		{"missing transient", domain.ErrTransientNotFound, http.StatusNotFound, "TRANSIENT_NOT_FOUND"},
		{"conflict", domain.ErrStoreConflict, http.StatusConflict, "STORE_CONFLICT"},
		{"too large", domain.ErrSessionTooLarge, http.StatusRequestEntityTooLarge, "SESSION_TOO_LARGE"},
		{"store down", fmt.Errorf("%w: dial tcp", domain.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, ""},
	}

	e := echo.New()
	h := NewHTTPErrorHandler(zerolog.Nop())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h(tc.err, c)

			if rec.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body: %v", err)
			}
			if body.Code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, body.Code)
			}
			if body.Error == "" {
				t.Fatal("expected an error message")
			}
		})
	}
}

func TestHTTPErrorHandler_DoesNotLeakCause(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("mongo: password=hunter2"), e.NewContext(req, rec))

	var body errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal server error" {
		t.Fatalf("internal cause leaked: %q", body.Error)
	}
}
