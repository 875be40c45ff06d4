package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// RequireRole enforces a minimum role. ADMIN passes USER checks.
func RequireRole(authz ports.AuthorizationService, role domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sc := CurrentSecurityContext(c)
			if !sc.Authenticated {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
					"code":  domain.ErrorCode(domain.ErrNotAuthenticated),
				})
			}
			if !authz.HasRole(sc, role) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "forbidden",
					"code":  domain.ErrorCode(domain.ErrNotAuthorized),
				})
			}
			return next(c)
		}
	}
}
