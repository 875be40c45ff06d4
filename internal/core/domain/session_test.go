package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSessionRecord_CloneIsDeep(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := NewSessionRecord("sess-1", "USER0001", now, 30*time.Minute)
	rec.SetState("k", []byte("v"))
	rec.PushNavigation("COSGN00", now)
	rec.ErrorContext = &ErrorContext{Code: "E1"}

	c := rec.Clone()
	c.ConversationalState["k"][0] = 'x'
	c.NavigationHistory[0].Screen = "COMEN01"
	c.ErrorContext.Code = "E2"

	if v, _ := rec.State("k"); string(v) != "v" {
		t.Fatalf("clone shares state bytes")
	}
	if rec.NavigationHistory[0].Screen != "COSGN00" {
		t.Fatalf("clone shares navigation history")
	}
	if rec.ErrorContext.Code != "E1" {
		t.Fatalf("clone shares error context")
	}
}

func TestSessionRecord_PushNavigationBounded(t *testing.T) {
	now := time.Now()
	rec := NewSessionRecord("sess-1", "USER0001", now, time.Minute)
	for i := 0; i < MaxNavigationEntries+5; i++ {
		rec.PushNavigation(fmt.Sprintf("S%02d", i), now)
	}
	if len(rec.NavigationHistory) != MaxNavigationEntries {
		t.Fatalf("expected %d entries, got %d", MaxNavigationEntries, len(rec.NavigationHistory))
	}
	if rec.NavigationHistory[0].Screen != "S05" {
		t.Fatalf("oldest entries should drop first, head is %s", rec.NavigationHistory[0].Screen)
	}
}

func TestSessionRecord_Touch(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rec := NewSessionRecord("sess-1", "USER0001", t0, 30*time.Minute)
	rec.Touch(t0.Add(10*time.Minute), 30*time.Minute)
	if !rec.ExpiresAt.Equal(t0.Add(40 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
	}
	if !rec.CreatedAt.Equal(t0) {
		t.Fatalf("touch must not move createdAt")
	}
}

func TestSecurityContext_RequestScoped(t *testing.T) {
	base := context.Background()
	if _, ok := SecurityContextFrom(base); ok {
		t.Fatalf("empty context should carry no security context")
	}
	tok := &Token{ID: "j1", Subject: "USER0001", Role: RoleUser, SessionID: "sess-1"}
	ctx := WithSecurityContext(base, AuthenticatedContext(tok))
	sc, ok := SecurityContextFrom(ctx)
	if !ok || !sc.Authenticated || sc.Principal.ID != "USER0001" || sc.SessionID != "sess-1" {
		t.Fatalf("unexpected security context %+v", sc)
	}
	if _, ok := SecurityContextFrom(base); ok {
		t.Fatalf("parent context must be unaffected")
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrTokenExpired, "TOKEN_EXPIRED"},
		{fmt.Errorf("update: %w", ErrSessionTooLarge), "SESSION_TOO_LARGE"},
		{fmt.Errorf("%w: dial tcp: refused", ErrStoreUnavailable), "STORE_UNAVAILABLE"},
		{errors.New("boom"), "INTERNAL"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
