package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

type stubAuthz struct{}

func (stubAuthz) HasRole(sc domain.SecurityContext, role domain.Role) bool {
	return sc.Authenticated && domain.RoleSatisfies(sc.Role, role)
}

func (stubAuthz) CanAccessResource(domain.SecurityContext, string, string) domain.Decision {
	return domain.Deny(domain.ReasonNotAuthorized)
}

func (stubAuthz) CanAccessOwned(context.Context, domain.SecurityContext, string, string) domain.Decision {
	return domain.Deny(domain.ReasonNotAuthorized)
}

func TestRequireRole(t *testing.T) {
	admin := domain.AuthenticatedContext(&domain.Token{Subject: "ADMIN001", Role: domain.RoleAdmin, SessionID: "s"})
	user := domain.AuthenticatedContext(&domain.Token{Subject: "USER0001", Role: domain.RoleUser, SessionID: "s"})

	cases := []struct {
		name string
		sc   domain.SecurityContext
		role domain.Role
		want int
	}{
		{"admin on admin route", admin, domain.RoleAdmin, http.StatusOK},
		{"admin on user route", admin, domain.RoleUser, http.StatusOK},
		{"user on user route", user, domain.RoleUser, http.StatusOK},
		{"user on admin route", user, domain.RoleAdmin, http.StatusForbidden},
		{"anonymous", domain.Anonymous(""), domain.RoleUser, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(domain.WithSecurityContext(req.Context(), tc.sc))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := RequireRole(stubAuthz{}, tc.role)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			if err := handler(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
