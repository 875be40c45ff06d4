package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SessionStore, *miniredis.Miniredis, *clockwork.FakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClockAt(t0)
	store := NewSessionStore(client, SessionStoreConfig{Timeout: time.Second}, clock, zerolog.Nop())
	return store, mr, clock
}

func TestSessionStore_CreateRead(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, 30*time.Minute)
	rec.SetState("acct", []byte(`"00000000011"`))
	rec.PushNavigation("COSGN00", t0)
	if err := store.Create(ctx, rec, 30*time.Minute); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := store.Read(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if got.SubjectID != "USER0001" || got.SchemaVersion != domain.SessionSchemaVersion {
		t.Fatalf("unexpected record: %+v", got)
	}
	if v, ok := got.State("acct"); !ok || string(v) != `"00000000011"` {
		t.Fatalf("state not preserved: %q", v)
	}
	if len(got.NavigationHistory) != 1 || !got.NavigationHistory[0].At.Equal(t0) {
		t.Fatalf("navigation not preserved: %+v", got.NavigationHistory)
	}
	if !got.ExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Fatalf("expiresAt should follow key TTL, got %v", got.ExpiresAt)
	}
}

func TestSessionStore_CreateNeverOverwrites(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute)
	if err := store.Create(ctx, rec, time.Minute); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	other := domain.NewSessionRecord("sess-1", "USER0002", t0, time.Minute)
	if err := store.Create(ctx, other, time.Minute); !errors.Is(err, domain.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	got, _ := store.Read(ctx, "sess-1")
	if got.SubjectID != "USER0001" {
		t.Fatalf("record was overwritten")
	}
}

func TestSessionStore_ReadMissing(t *testing.T) {
	store, _, _ := newTestStore(t)
	if _, err := store.Read(context.Background(), "nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStore_IdleExpiry(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, 30*time.Minute)
	if err := store.Create(ctx, rec, 30*time.Minute); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	mr.FastForward(1801 * time.Second)
	if _, err := store.Read(ctx, "sess-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after TTL lapse, got %v", err)
	}
}

func TestSessionStore_RefreshTTLSlides(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, 30*time.Minute)
	_ = store.Create(ctx, rec, 30*time.Minute)

	mr.FastForward(20 * time.Minute)
	if err := store.RefreshTTL(ctx, "sess-1", 30*time.Minute); err != nil {
		t.Fatalf("RefreshTTL returned error: %v", err)
	}
	mr.FastForward(20 * time.Minute)
	if _, err := store.Read(ctx, "sess-1"); err != nil {
		t.Fatalf("record should survive after sliding TTL, got %v", err)
	}

	if err := store.RefreshTTL(ctx, "missing", time.Minute); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionStore_UpdateKeepsTTL(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, 30*time.Minute)
	_ = store.Create(ctx, rec, 30*time.Minute)

	out, err := store.Update(ctx, "sess-1", func(r *domain.SessionRecord) error {
		r.SetState("k", []byte("v"))
		return nil
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if v, _ := out.State("k"); string(v) != "v" {
		t.Fatalf("update result missing state")
	}
	if ttl := mr.TTL("session:sess-1"); ttl != 30*time.Minute {
		t.Fatalf("update must keep the TTL, got %v", ttl)
	}
}

func TestSessionStore_UpdateTooLargeLeavesRecord(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute)
	rec.SetState("small", []byte("ok"))
	_ = store.Create(ctx, rec, time.Minute)

	_, err := store.Update(ctx, "sess-1", func(r *domain.SessionRecord) error {
		r.SetState("big", []byte(strings.Repeat("x", domain.MaxRecordBytes)))
		return nil
	})
	if !errors.Is(err, domain.ErrSessionTooLarge) {
		t.Fatalf("expected ErrSessionTooLarge, got %v", err)
	}
	got, _ := store.Read(ctx, "sess-1")
	if _, ok := got.State("big"); ok {
		t.Fatalf("oversized write must not be stored")
	}
	if v, _ := got.State("small"); string(v) != "ok" {
		t.Fatalf("prior state lost")
	}
}

func TestSessionStore_CreateTooLarge(t *testing.T) {
	store, _, _ := newTestStore(t)
	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute)
	rec.SetState("big", []byte(strings.Repeat("x", domain.MaxRecordBytes+1)))
	if err := store.Create(context.Background(), rec, time.Minute); !errors.Is(err, domain.ErrSessionTooLarge) {
		t.Fatalf("expected ErrSessionTooLarge, got %v", err)
	}
}

func TestSessionStore_UpdateMissingAndMutatorError(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	noop := func(*domain.SessionRecord) error { return nil }
	if _, err := store.Update(ctx, "missing", noop); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	_ = store.Create(ctx, domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute), time.Minute)
	boom := errors.New("boom")
	if _, err := store.Update(ctx, "sess-1", func(*domain.SessionRecord) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
}

func TestSessionStore_ConcurrentUpdates(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_ = store.Create(ctx, domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "sess-1", func(r *domain.SessionRecord) error {
				r.PushNavigation("COMEN01", t0)
				return nil
			})
			if err != nil && !errors.Is(err, domain.ErrStoreConflict) {
				t.Errorf("unexpected update error: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := store.Read(ctx, "sess-1"); err != nil {
		t.Fatalf("record corrupted after concurrent updates: %v", err)
	}
}

func TestSessionStore_DeleteIdempotent(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()
	_ = store.Create(ctx, domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute), time.Minute)

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("second Delete returned error: %v", err)
	}
}

func TestSessionStore_Unavailable(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	rec := domain.NewSessionRecord("sess-1", "USER0001", t0, time.Minute)
	checks := map[string]error{
		"create":      store.Create(ctx, rec, time.Minute),
		"refresh_ttl": store.RefreshTTL(ctx, "sess-1", time.Minute),
		"delete":      store.Delete(ctx, "sess-1"),
	}
	_, checks["read"] = store.Read(ctx, "sess-1")
	_, checks["update"] = store.Update(ctx, "sess-1", func(*domain.SessionRecord) error { return nil })

	for op, err := range checks {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("%s: expected ErrStoreUnavailable, got %v", op, err)
		}
	}
}
