package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// sessionContext returns the caller's security context and fails fast with
// domain.ErrNotAuthenticated before any service call when the gate did not
// authenticate the request.
func sessionContext(c echo.Context) (domain.SecurityContext, error) {
	sc, ok := domain.SecurityContextFrom(c.Request().Context())
	if !ok || !sc.Authenticated {
		return domain.SecurityContext{}, domain.ErrNotAuthenticated
	}
	return sc, nil
}
