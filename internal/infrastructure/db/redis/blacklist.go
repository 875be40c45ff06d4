package redis

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// Blacklist records revoked token ids in Redis with a TTL equal to the
// token's remaining lifetime, so entries never outlive their token.
// Key format: blacklist:<jti>
//
// Every revocation is mirrored in process. When Redis cannot be reached the
// mirror answers and the wrapped domain.ErrStoreUnavailable is returned
// alongside the result.
type Blacklist struct {
	client  *redis.Client
	timeout time.Duration
	clock   clockwork.Clock
	log     zerolog.Logger

	mu     sync.RWMutex
	mirror map[string]time.Time
}

var _ ports.Blacklist = (*Blacklist)(nil)

// NewBlacklist creates a Blacklist wrapping the given Redis client.
func NewBlacklist(client *redis.Client, timeout time.Duration, clock clockwork.Clock, log zerolog.Logger) *Blacklist {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Blacklist{
		client:  client,
		timeout: timeout,
		clock:   clock,
		log:     log,
		mirror:  make(map[string]time.Time),
	}
}

// Revoke adds tokenID until expiresAt. revoked is true only for the caller
// whose write created the entry.
func (b *Blacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(b.clock.Now())
	if ttl <= 0 {
		return false, nil
	}
	created := b.remember(tokenID, expiresAt)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	ok, err := b.client.SetNX(ctx, b.key(tokenID), "1", ttl).Result()
	if err != nil {
		metrics.BlacklistDegradedTotal.WithLabelValues("revoke").Inc()
		return created, unavailable(err)
	}
	return ok, nil
}

// IsRevoked reports whether tokenID has been revoked.
func (b *Blacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if b.mirrored(tokenID) {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	n, err := b.client.Exists(ctx, b.key(tokenID)).Result()
	if err != nil {
		metrics.BlacklistDegradedTotal.WithLabelValues("check").Inc()
		return false, unavailable(err)
	}
	return n > 0, nil
}

// Cleanup drops mirror entries whose token has expired and returns how many
// were removed.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, exp := range b.mirror {
		if !now.Before(exp) {
			delete(b.mirror, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (b *Blacklist) Run(ctx context.Context, interval time.Duration) {
	ticker := b.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			if n := b.Cleanup(now); n > 0 {
				b.log.Debug().Int("removed", n).Msg("blacklist mirror cleaned")
			}
		}
	}
}

// Len returns the number of mirrored entries.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.mirror)
}

func (b *Blacklist) remember(tokenID string, expiresAt time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.mirror[tokenID]; ok {
		return false
	}
	b.mirror[tokenID] = expiresAt
	return true
}

func (b *Blacklist) mirrored(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	exp, ok := b.mirror[tokenID]
	return ok && b.clock.Now().Before(exp)
}

func (b *Blacklist) key(tokenID string) string {
	return "blacklist:" + tokenID
}
