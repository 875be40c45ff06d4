package domain

import (
	"context"
	"time"
)

// SecurityContext is the per-request view of who is calling. It is built
// fresh by the authentication gate for every request and never shared.
type SecurityContext struct {
	Principal     Principal
	Role          Role
	Authenticated bool
	SessionID     string
	TokenID       string
	ExpiresAt     time.Time
	// Failure is the taxonomy code of the token failure that left the request
	// unauthenticated, empty when no token was presented.
	Failure string
}

// Anonymous returns an unauthenticated context carrying failure.
func Anonymous(failure string) SecurityContext {
	return SecurityContext{Failure: failure}
}

// AuthenticatedContext returns the context asserted by a validated token.
func AuthenticatedContext(t *Token) SecurityContext {
	return SecurityContext{
		Principal:     t.Principal(),
		Role:          t.Role,
		Authenticated: true,
		SessionID:     t.SessionID,
		TokenID:       t.ID,
		ExpiresAt:     t.ExpiresAt,
	}
}

type securityContextKey struct{}

// WithSecurityContext returns a child of ctx carrying sc for this request only.
func WithSecurityContext(ctx context.Context, sc SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the security context installed on ctx, if any.
func SecurityContextFrom(ctx context.Context) (SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(SecurityContext)
	return sc, ok
}

// Decision reasons.
const (
	ReasonAdmin            = "ROLE_ADMIN"
	ReasonOwner            = "OWNER"
	ReasonNotAuthenticated = "NOT_AUTHENTICATED"
	ReasonNotAuthorized    = "NOT_AUTHORIZED"
)

// Decision is the output of an authorization check. Never stored.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Allow returns an allowing decision with reason.
func Allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }

// Deny returns a denying decision with reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }
