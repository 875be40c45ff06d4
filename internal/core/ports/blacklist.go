package ports

import (
	"context"
	"time"
)

// Blacklist records revoked token ids until the token's natural expiry.
type Blacklist interface {
	// Revoke adds tokenID with an entry that lapses at expiresAt. revoked is
	// true only for the caller that created the entry.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (revoked bool, err error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
