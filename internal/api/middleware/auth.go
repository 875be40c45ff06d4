package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// Login redirect reasons.
const (
	ReasonSessionExpired = "SESSION_EXPIRED"
	ReasonAuthRequired   = "AUTH_REQUIRED"
)

// Authenticate installs a SecurityContext on every request. It never rejects:
// a missing, malformed or invalid token yields an unauthenticated context
// and the request continues. Protected routes add RequireAuthenticated.
//
// activity may be nil; when set, every authenticated request slides the
// session TTL through it.
func Authenticate(tokens ports.TokenValidator, activity ports.ActivityRecorder, log zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if _, ok := domain.SecurityContextFrom(req.Context()); ok {
				return next(c)
			}

			sc := resolve(req.Context(), req.Header.Get(echo.HeaderAuthorization), tokens, log)
			c.SetRequest(req.WithContext(domain.WithSecurityContext(req.Context(), sc)))
			if sc.Authenticated && activity != nil {
				activity.Touch(sc.SessionID)
			}
			return next(c)
		}
	}
}

func resolve(ctx context.Context, header string, tokens ports.TokenValidator, log zerolog.Logger) (sc domain.SecurityContext) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Msg("authentication gate recovered from panic")
			sc = domain.Anonymous("INTERNAL")
		}
	}()

	raw, ok := BearerToken(header)
	if !ok {
		return domain.Anonymous("")
	}
	tok, err := tokens.Validate(ctx, raw)
	if err != nil {
		log.Debug().Err(err).Msg("bearer token rejected")
		return domain.Anonymous(domain.ErrorCode(err))
	}
	return domain.AuthenticatedContext(tok)
}

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively and surrounding whitespace is
// ignored. ok is false for a missing, empty or non-bearer header.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// CurrentSecurityContext returns the context installed by Authenticate, or
// an unauthenticated one when the gate did not run.
func CurrentSecurityContext(c echo.Context) domain.SecurityContext {
	sc, _ := domain.SecurityContextFrom(c.Request().Context())
	return sc
}

// RequireAuthenticated rejects unauthenticated requests with 401 and a
// login_url that carries the reason and the originally requested path.
func RequireAuthenticated(loginURL string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sc := CurrentSecurityContext(c)
			if sc.Authenticated {
				return next(c)
			}

			reason := ReasonAuthRequired
			switch sc.Failure {
			case "TOKEN_EXPIRED", "TOKEN_BLACKLISTED":
				reason = ReasonSessionExpired
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":     "authentication required",
				"code":      domain.ErrorCode(domain.ErrNotAuthenticated),
				"reason":    reason,
				"login_url": LoginRedirect(loginURL, reason, c.Request().URL.RequestURI()),
			})
		}
	}
}

// LoginRedirect appends reason and next to loginURL.
func LoginRedirect(loginURL, reason, next string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return loginURL
	}
	q := u.Query()
	q.Set("reason", reason)
	if next != "" {
		q.Set("next", next)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
