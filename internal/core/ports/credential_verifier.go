package ports

import (
	"context"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// CredentialVerifier looks up principals by user id. It returns
// domain.ErrUserNotFound when no such user exists.
type CredentialVerifier interface {
	FindByUsername(ctx context.Context, username string) (*domain.Principal, error)
}
