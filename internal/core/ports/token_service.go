package ports

import (
	"context"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// TokenValidator is the slice of the token service the authentication gate needs.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*domain.Token, error)
}

// TokenService issues and checks bearer tokens.
type TokenService interface {
	TokenValidator
	Issue(principal domain.Principal, sessionID string) (*domain.Token, error)
	ExtractClaims(raw string) (*domain.Token, error)
	Revoke(ctx context.Context, raw string) error
	// IsRevoked reports whether tokenID is blacklisted, either by Revoke or
	// because Refresh rotated it out.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Refresh(ctx context.Context, raw string) (*domain.Token, error)
}
