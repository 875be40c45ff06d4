package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type errorMapping struct {
	status int
	msg    string
}

// errorStatus maps taxonomy codes to the status and fixed message the client
// sees. Messages never include the underlying cause.
var errorStatus = map[string]errorMapping{
	"MALFORMED_TOKEN":         {http.StatusUnauthorized, "malformed token"},
	"SIGNATURE_INVALID":       {http.StatusUnauthorized, "invalid token"},
	"TOKEN_EXPIRED":           {http.StatusUnauthorized, "token expired"},
	"TOKEN_BLACKLISTED":       {http.StatusUnauthorized, "token revoked"},
	"NOT_AUTHENTICATED":       {http.StatusUnauthorized, "authentication required"},
	"INVALID_CREDENTIALS":     {http.StatusUnauthorized, "invalid user id or password"},
	"ACCOUNT_DISABLED":        {http.StatusForbidden, "account disabled"},
	"NOT_AUTHORIZED":          {http.StatusForbidden, "access forbidden"},
	"SESSION_NOT_FOUND":       {http.StatusNotFound, "session not found"},
	"USER_NOT_FOUND":          {http.StatusNotFound, "user not found"},
	"RESOURCE_NOT_FOUND":      {http.StatusNotFound, "resource not found"},
	"TRANSIENT_NOT_FOUND":     {http.StatusNotFound, "no data stored under key"},
	"ALREADY_EXISTS":          {http.StatusConflict, "session already exists"},
	"STORE_CONFLICT":          {http.StatusConflict, "session busy, retry"},
	"SESSION_TOO_LARGE":       {http.StatusRequestEntityTooLarge, "session data exceeds size limit"},
	"STORE_UNAVAILABLE":       {http.StatusServiceUnavailable, "session store unavailable"},
	"SIGNING_KEY_UNAVAILABLE": {http.StatusServiceUnavailable, "token signing unavailable"},
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps domain errors to a status code and their taxonomy code.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<CODE>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, validation).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	code := domain.ErrorCode(err)
	if m, ok := errorStatus[code]; ok {
		if m.status >= http.StatusInternalServerError {
			log.Warn().Err(err).Str("code", code).Str("path", c.Path()).Msg("dependency failure")
		}
		return m.status, errorResponse{Error: m.msg, Code: code}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "INTERNAL"}
}
