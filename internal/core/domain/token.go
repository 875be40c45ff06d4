package domain

import "time"

// Token is a validated (or extracted) bearer token together with its claims.
// It is never mutated; refresh produces a new Token.
type Token struct {
	Raw       string    `json:"-"`
	ID        string    `json:"jti"`
	Subject   string    `json:"sub"`
	Role      Role      `json:"role"`
	SessionID string    `json:"sid"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Remaining returns the lifetime left at now; never negative.
func (t *Token) Remaining(now time.Time) time.Duration {
	d := t.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Principal rebuilds the principal asserted by the token's claims.
func (t *Token) Principal() Principal {
	return Principal{ID: t.Subject, Role: t.Role, Enabled: true}
}
