package ports

import (
	"context"
	"time"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// SessionMutator edits a private copy of a record inside SessionStore.Update.
// Returning an error aborts the write.
type SessionMutator func(rec *domain.SessionRecord) error

// SessionStore holds session records in a keyed, TTL-bearing store.
//
// Every method surfaces domain.ErrStoreUnavailable (wrapped) when the backing
// store cannot be reached within its operation timeout.
type SessionStore interface {
	// Create fails with domain.ErrSessionTooLarge or domain.ErrSessionExists;
	// it never overwrites.
	Create(ctx context.Context, rec *domain.SessionRecord, ttl time.Duration) error
	Read(ctx context.Context, sessionID string) (*domain.SessionRecord, error)
	// Update is a read-modify-write of a single record. Oversized results fail
	// with domain.ErrSessionTooLarge and leave the stored record unchanged.
	Update(ctx context.Context, sessionID string, mutate SessionMutator) (*domain.SessionRecord, error)
	// RefreshTTL extends the expiry without touching record content.
	RefreshTTL(ctx context.Context, sessionID string, ttl time.Duration) error
	// Delete is idempotent.
	Delete(ctx context.Context, sessionID string) error
}
