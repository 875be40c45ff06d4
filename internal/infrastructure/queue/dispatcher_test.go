package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

type stubStore struct {
	ports.SessionStore
	refreshFn func(ctx context.Context, sessionID string, ttl time.Duration) error
}

func (s *stubStore) RefreshTTL(ctx context.Context, sessionID string, ttl time.Duration) error {
	return s.refreshFn(ctx, sessionID, ttl)
}

func TestDispatcher_TouchRefreshesTTLInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	done := make(chan struct{}, 3)
	store := &stubStore{refreshFn: func(_ context.Context, sid string, ttl time.Duration) error {
		if ttl != 30*time.Minute {
			t.Errorf("unexpected ttl %v", ttl)
		}
		mu.Lock()
		seen = append(seen, sid)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(1, store, 30*time.Minute, zerolog.Nop())
	d.Start(ctx)

	d.Touch("a")
	d.Touch("b")
	d.Touch("a")
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for ttl refresh %d", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "a" {
		t.Fatalf("unexpected order: %v", seen)
	}
}

func TestDispatcher_TouchNeverBlocks(t *testing.T) {
	store := &stubStore{refreshFn: func(context.Context, string, time.Duration) error { return nil }}
	d := NewDispatcher(1, store, time.Minute, zerolog.Nop())

	finished := make(chan struct{})
	go func() {
		for i := 0; i < channelBuffer*2; i++ {
			d.Touch("sess-1")
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("Touch blocked with no workers running")
	}
}

func TestDispatcher_StoreErrorsAreSwallowed(t *testing.T) {
	done := make(chan struct{}, 2)
	store := &stubStore{refreshFn: func(_ context.Context, sid string, _ time.Duration) error {
		defer func() { done <- struct{}{} }()
		if sid == "gone" {
			return domain.ErrSessionNotFound
		}
		return domain.ErrStoreUnavailable
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := NewDispatcher(2, store, time.Minute, zerolog.Nop())
	d.Start(ctx)

	d.Touch("gone")
	d.Touch("down")
	d.Touch("")
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out")
		}
	}
}

func TestDispatcher_ShardIndexStable(t *testing.T) {
	d := NewDispatcher(8, nil, time.Minute, zerolog.Nop())
	for _, sid := range []string{"a", "sess-1", "0b6f1c9e-6a59-4c1e-9d1b-3c7f8f0e2a11"} {
		first := d.shardIndex(sid)
		if first < 0 || first >= 8 {
			t.Fatalf("index out of range: %d", first)
		}
		if d.shardIndex(sid) != first {
			t.Fatalf("shard index not deterministic for %s", sid)
		}
	}
}
