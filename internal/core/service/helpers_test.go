package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/pkg/keys"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type memBlacklist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	err     error
	revokes int
}

func newMemBlacklist() *memBlacklist {
	return &memBlacklist{entries: make(map[string]time.Time)}
}

func (b *memBlacklist) Revoke(_ context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revokes++
	if _, ok := b.entries[tokenID]; ok {
		return false, b.err
	}
	b.entries[tokenID] = expiresAt
	return true, b.err
}

func (b *memBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[tokenID]
	return ok, b.err
}

func testSigningKey(t *testing.T) *keys.SigningKey {
	t.Helper()
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	key, err := keys.FromSigner(pk)
	if err != nil {
		t.Fatalf("signing key: %v", err)
	}
	return key
}

func newTestTokenService(t *testing.T, bl *memBlacklist) (*TokenService, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	svc, err := NewTokenService(testSigningKey(t), bl, TokenConfig{
		Issuer:        "carddemo-test",
		TTL:           30 * time.Minute,
		RefreshWindow: 5 * time.Minute,
	}, clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc, clock
}

func userPrincipal(id string) domain.Principal {
	return domain.Principal{ID: id, Role: domain.RoleUser, Enabled: true}
}
