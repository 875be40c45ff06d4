package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// LoginResult is returned by SessionService.Login.
type LoginResult struct {
	Token     *domain.Token
	Principal *domain.Principal
	// Degraded is true when the session record could not be created and the
	// session runs on the token alone.
	Degraded bool
}

// RefreshResult is returned by SessionService.Refresh.
type RefreshResult struct {
	Token    *domain.Token
	Rotated  bool
	Degraded bool
}

// SessionView is the validate-session answer.
type SessionView struct {
	Token *domain.Token
	// Remaining is the token lifetime left at validation time.
	Remaining time.Duration
	// StateAvailable is false when the session record is missing or the
	// store could not be reached.
	StateAvailable bool
	LastActivityAt time.Time
}

// SessionService exposes the session endpoints to the transport layer.
type SessionService interface {
	Login(ctx context.Context, userID, password string) (*LoginResult, error)
	Refresh(ctx context.Context, raw string) (*RefreshResult, error)
	Validate(ctx context.Context, raw string) (*SessionView, error)
	Terminate(ctx context.Context, raw string) error

	PutTransient(ctx context.Context, sc domain.SecurityContext, key string, value json.RawMessage) error
	GetTransient(ctx context.Context, sc domain.SecurityContext, key string) (json.RawMessage, error)
	DeleteTransient(ctx context.Context, sc domain.SecurityContext, key string) error
	RecordNavigation(ctx context.Context, sc domain.SecurityContext, screen string) error
	SetErrorContext(ctx context.Context, sc domain.SecurityContext, ec domain.ErrorContext) error
	ClearErrorContext(ctx context.Context, sc domain.SecurityContext) error

	Inspect(ctx context.Context, sessionID string) (*domain.SessionRecord, error)
}

// AuthorizationService answers role and ownership checks.
type AuthorizationService interface {
	HasRole(sc domain.SecurityContext, role domain.Role) bool
	CanAccessResource(sc domain.SecurityContext, ownerID, resourceID string) domain.Decision
	CanAccessOwned(ctx context.Context, sc domain.SecurityContext, kind, resourceID string) domain.Decision
}
