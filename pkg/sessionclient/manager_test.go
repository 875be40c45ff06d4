package sessionclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func makeToken(t *testing.T, sid string, exp time.Time) string {
	t.Helper()
	claims := clientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "USER0001",
			ID:        sid + "-" + exp.Format("150405"),
			IssuedAt:  jwt.NewNumericDate(t0),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role:      "USER",
		SessionID: sid,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-only-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type stubBackend struct {
	refreshFn   func(ctx context.Context, token string) (string, error)
	terminateFn func(ctx context.Context, token string) error
	refreshes   atomic.Int32
	terminates  atomic.Int32
}

func (b *stubBackend) Refresh(ctx context.Context, token string) (string, error) {
	b.refreshes.Add(1)
	if b.refreshFn == nil {
		return "", errors.New("refresh not expected")
	}
	return b.refreshFn(ctx, token)
}

func (b *stubBackend) Terminate(ctx context.Context, token string) error {
	b.terminates.Add(1)
	if b.terminateFn == nil {
		return nil
	}
	return b.terminateFn(ctx, token)
}

type memAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *memAudit) Record(ev AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *memAudit) types() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, ev := range a.events {
		out = append(out, ev.Type)
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func notRefreshing(m *Manager) func() bool {
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return !m.refreshing
	}
}

// manualOptions disables the ticker so tests drive Check directly.
func manualOptions(clock clockwork.Clock) Options {
	return Options{
		CheckInterval:    time.Hour,
		WarningThreshold: 5 * time.Minute,
		RefreshThreshold: 2 * time.Minute,
		Clock:            clock,
		Logger:           zerolog.Nop(),
	}
}

func TestManager_WarningFiresOncePerCrossing(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var warnings atomic.Int32
	opts := manualOptions(clock)
	opts.OnWarning = func(time.Duration) { warnings.Add(1) }
	m := New(&stubBackend{}, opts)
	defer m.Close()

	if err := m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(360*time.Second))); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}

	clock.Advance(55 * time.Second)
	if got := m.Check(); got != StateActive || warnings.Load() != 0 {
		t.Fatalf("at +55s expected ACTIVE without warning, got %s / %d", got, warnings.Load())
	}

	clock.Advance(6 * time.Second)
	if got := m.Check(); got != StateWarning || warnings.Load() != 1 {
		t.Fatalf("at +61s expected WARNING with one warning, got %s / %d", got, warnings.Load())
	}

	clock.Advance(10 * time.Second)
	m.Check()
	if warnings.Load() != 1 {
		t.Fatalf("warning must not repeat, got %d", warnings.Load())
	}
}

func TestManager_RefreshNearExpiryIsGuarded(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	next := makeToken(t, "s1", t0.Add(33*time.Minute))
	release := make(chan struct{})
	backend := &stubBackend{
		refreshFn: func(ctx context.Context, token string) (string, error) {
			<-release
			return next, nil
		},
	}
	refreshed := make(chan string, 1)
	opts := manualOptions(clock)
	opts.OnRefreshed = func(tok string) { refreshed <- tok }
	m := New(backend, opts)
	defer m.Close()

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(3*time.Minute)))
	clock.Advance(90 * time.Second)

	m.Check()
	m.Check()
	close(release)

	select {
	case tok := <-refreshed:
		if tok != next {
			t.Fatalf("unexpected refreshed token")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh never committed")
	}

	if n := backend.refreshes.Load(); n != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", n)
	}
	if m.Token() != next || m.State() != StateActive {
		t.Fatalf("new token not installed: state %s", m.State())
	}
	if r := m.Remaining(); r != 33*time.Minute-90*time.Second {
		t.Fatalf("unexpected remaining %v", r)
	}
}

func TestManager_RefreshFailureRetriesOnNextCheck(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	next := makeToken(t, "s1", t0.Add(31*time.Minute))
	var calls atomic.Int32
	backend := &stubBackend{
		refreshFn: func(context.Context, string) (string, error) {
			if calls.Add(1) == 1 {
				return "", errors.New("connection refused")
			}
			return next, nil
		},
	}
	m := New(backend, manualOptions(clock))
	defer m.Close()

	first := makeToken(t, "s1", t0.Add(time.Minute))
	_ = m.Initialize(context.Background(), first)

	m.Check()
	waitFor(t, "first refresh to settle", notRefreshing(m))
	if m.Token() != first {
		t.Fatal("failed refresh must keep the current token")
	}

	m.Check()
	waitFor(t, "second refresh", func() bool { return m.Token() == next })
}

func TestManager_ExpiresOnTicker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	warned := make(chan struct{}, 1)
	terminated := make(chan string, 1)
	backend := &stubBackend{}
	audit := &memAudit{}
	m := New(backend, Options{
		CheckInterval:         30 * time.Second,
		RefreshOnlyWhenActive: true,
		OnWarning:             func(time.Duration) { warned <- struct{}{} },
		OnTerminate:           func(reason string) { terminated <- reason },
		Clock:                 clock,
		Logger:                zerolog.Nop(),
		Audit:                 audit,
	})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(50*time.Second)))
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker not started: %v", err)
	}

	clock.Advance(30 * time.Second)
	select {
	case <-warned:
	case <-ctx.Done():
		t.Fatal("no warning on first tick")
	}

	clock.Advance(30 * time.Second)
	select {
	case reason := <-terminated:
		if reason != ReasonSessionExpired {
			t.Fatalf("unexpected reason %q", reason)
		}
	case <-ctx.Done():
		t.Fatal("session never expired")
	}

	if m.State() != StateExpired || m.Token() != "" {
		t.Fatalf("expected EXPIRED without token, got %s", m.State())
	}
	if n := backend.refreshes.Load(); n != 0 {
		t.Fatalf("idle session must not refresh, got %d calls", n)
	}
	types := audit.types()
	if len(types) != 2 || types[0] != EventSessionCreated || types[1] != EventSessionExpired {
		t.Fatalf("unexpected audit trail: %v", types)
	}
}

func TestManager_TerminateIsBestEffort(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	backend := &stubBackend{
		terminateFn: func(context.Context, string) error { return errors.New("server unreachable") },
	}
	var reasons []string
	audit := &memAudit{}
	opts := manualOptions(clock)
	opts.OnTerminate = func(reason string) { reasons = append(reasons, reason) }
	opts.Audit = audit
	m := New(backend, opts)

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(30*time.Minute)))
	m.Terminate(context.Background(), ReasonUserLogout)
	m.Terminate(context.Background(), ReasonUserLogout)

	if m.State() != StateTerminated || m.Token() != "" {
		t.Fatalf("expected TERMINATED without token, got %s", m.State())
	}
	if n := backend.terminates.Load(); n != 1 {
		t.Fatalf("expected one server terminate, got %d", n)
	}
	if len(reasons) != 1 || reasons[0] != ReasonUserLogout {
		t.Fatalf("unexpected callbacks: %v", reasons)
	}
	if types := audit.types(); types[len(types)-1] != EventSessionTerminated {
		t.Fatalf("terminate not audited: %v", types)
	}
}

func TestManager_TerminateDiscardsInFlightRefresh(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	release := make(chan struct{})
	next := makeToken(t, "s1", t0.Add(31*time.Minute))
	backend := &stubBackend{
		refreshFn: func(context.Context, string) (string, error) {
			<-release
			return next, nil
		},
	}
	var refreshed atomic.Bool
	opts := manualOptions(clock)
	opts.OnRefreshed = func(string) { refreshed.Store(true) }
	m := New(backend, opts)

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(time.Minute)))
	m.Check()
	m.Terminate(context.Background(), ReasonUserLogout)
	close(release)

	waitFor(t, "refresh to settle", notRefreshing(m))
	if refreshed.Load() || m.Token() != "" {
		t.Fatal("refresh result committed after terminate")
	}
}

func TestManager_CloseSilencesCallbacks(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var fired atomic.Int32
	opts := manualOptions(clock)
	opts.OnWarning = func(time.Duration) { fired.Add(1) }
	opts.OnTerminate = func(string) { fired.Add(1) }
	backend := &stubBackend{}
	m := New(backend, opts)

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(10*time.Minute)))
	m.Close()

	clock.Advance(time.Hour)
	m.Check()
	if fired.Load() != 0 {
		t.Fatalf("callbacks fired after Close: %d", fired.Load())
	}
	if backend.terminates.Load() != 0 {
		t.Fatal("Close must not contact the server")
	}
	if m.State() != StateTerminated || m.Token() != "" || m.Remaining() != 0 {
		t.Fatalf("closed manager still exposes the session: %s %q %s", m.State(), m.Token(), m.Remaining())
	}
}

func TestManager_TerminateAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	var reasons []string
	backend := &stubBackend{}
	opts := manualOptions(clock)
	opts.OnTerminate = func(reason string) { reasons = append(reasons, reason) }
	m := New(backend, opts)

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(time.Minute)))
	clock.Advance(2 * time.Minute)
	if got := m.Check(); got != StateExpired {
		t.Fatalf("expected EXPIRED, got %s", got)
	}

	m.Terminate(context.Background(), ReasonUserLogout)
	if len(reasons) != 1 || reasons[0] != ReasonSessionExpired {
		t.Fatalf("OnTerminate must fire once for the expiry only, got %v", reasons)
	}
	if n := backend.terminates.Load(); n != 1 {
		t.Fatalf("expected server cleanup after expiry, got %d calls", n)
	}
	if m.State() != StateTerminated {
		t.Fatalf("expected TERMINATED, got %s", m.State())
	}
}

func TestManager_Extend(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	next := makeToken(t, "s1", t0.Add(40*time.Minute))
	backend := &stubBackend{
		refreshFn: func(context.Context, string) (string, error) { return next, nil },
	}
	m := New(backend, manualOptions(clock))

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(4*time.Minute)))
	clock.Advance(time.Minute)
	if m.Check() != StateWarning {
		t.Fatalf("expected WARNING before extend")
	}

	if err := m.Extend(context.Background()); err != nil {
		t.Fatalf("Extend returned error: %v", err)
	}
	if m.Token() != next || m.State() != StateActive {
		t.Fatalf("extend did not install the new token")
	}

	m.Terminate(context.Background(), ReasonUserLogout)
	if err := m.Extend(context.Background()); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after terminate, got %v", err)
	}
}

func TestManager_RefreshOnlyWhenActive(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	next := makeToken(t, "s1", t0.Add(31*time.Minute))
	backend := &stubBackend{
		refreshFn: func(context.Context, string) (string, error) { return next, nil },
	}
	opts := manualOptions(clock)
	opts.RefreshOnlyWhenActive = true
	m := New(backend, opts)
	defer m.Close()

	_ = m.Initialize(context.Background(), makeToken(t, "s1", t0.Add(time.Minute)))
	m.Check()
	if backend.refreshes.Load() != 0 {
		t.Fatal("idle session must not refresh")
	}

	m.Touch()
	m.Check()
	waitFor(t, "refresh after activity", func() bool { return m.Token() == next })
}

func TestManager_Initialize(t *testing.T) {
	m := New(&stubBackend{}, manualOptions(clockwork.NewFakeClockAt(t0)))
	defer m.Close()

	if err := m.Initialize(context.Background(), "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if m.State() != StateUninitialized {
		t.Fatalf("failed initialize must not change state, got %s", m.State())
	}

	tok := makeToken(t, "s1", t0.Add(time.Hour))
	if err := m.Initialize(context.Background(), tok); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if err := m.Initialize(context.Background(), tok); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}
