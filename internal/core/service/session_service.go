package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const defaultSessionTTL = 30 * time.Minute

// SessionConfig holds the sliding inactivity timeout of session records.
type SessionConfig struct {
	TTL time.Duration
}

type sessionService struct {
	verifier ports.CredentialVerifier
	tokens   ports.TokenService
	store    ports.SessionStore
	audit    ports.AuditSink
	cfg      SessionConfig
	clock    clockwork.Clock
	log      zerolog.Logger
}

// NewSessionService returns a SessionService. audit may be nil.
func NewSessionService(
	verifier ports.CredentialVerifier,
	tokens ports.TokenService,
	store ports.SessionStore,
	audit ports.AuditSink,
	cfg SessionConfig,
	clock clockwork.Clock,
	log zerolog.Logger,
) ports.SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &sessionService{
		verifier: verifier,
		tokens:   tokens,
		store:    store,
		audit:    audit,
		cfg:      cfg,
		clock:    clock,
		log:      log,
	}
}

// Login verifies credentials, issues a token and creates the session record.
// An unreachable store degrades the session to token-only.
func (s *sessionService) Login(ctx context.Context, userID, password string) (*ports.LoginResult, error) {
	userID = strings.ToUpper(strings.TrimSpace(userID))
	if userID == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	principal, err := s.verifier.FindByUsername(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.loginFailed(ctx, userID, "USER_NOT_FOUND")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)) != nil {
		s.loginFailed(ctx, userID, "WRONG_PASSWORD")
		return nil, domain.ErrInvalidCredentials
	}
	if !principal.CanLogin() {
		s.loginFailed(ctx, userID, "ACCOUNT_DISABLED")
		return nil, domain.ErrAccountDisabled
	}

	sessionID := uuid.NewString()
	tok, err := s.tokens.Issue(*principal, sessionID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	degraded := false
	rec := domain.NewSessionRecord(sessionID, principal.ID, s.clock.Now().UTC(), s.cfg.TTL)
	if err := s.store.Create(ctx, rec, s.cfg.TTL); err != nil {
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return nil, fmt.Errorf("login: create session: %w", err)
		}
		degraded = true
		s.log.Warn().Err(err).Str("sid", sessionID).Msg("session store unavailable, continuing token-only")
	}

	s.record(ctx, domain.AuditEvent{
		Action:    domain.AuditSessionCreated,
		SubjectID: principal.ID,
		SessionID: sessionID,
		TokenID:   tok.ID,
	})
	metrics.SessionsTotal.WithLabelValues("created").Inc()
	s.log.Info().Str("user", principal.ID).Str("role", string(tok.Role)).Str("sid", sessionID).Bool("degraded", degraded).Msg("session created")

	out := *principal
	out.PasswordHash = ""
	return &ports.LoginResult{Token: tok, Principal: &out, Degraded: degraded}, nil
}

// Refresh rotates the token when due and slides the session record.
// A record that lapsed while the token stayed valid is recreated empty.
func (s *sessionService) Refresh(ctx context.Context, raw string) (*ports.RefreshResult, error) {
	next, err := s.tokens.Refresh(ctx, raw)
	if err != nil {
		return nil, err
	}
	res := &ports.RefreshResult{Token: next, Rotated: next.Raw != raw}

	now := s.clock.Now().UTC()
	_, err = s.store.Update(ctx, next.SessionID, func(rec *domain.SessionRecord) error {
		rec.Touch(now, s.cfg.TTL)
		return nil
	})
	if err == nil {
		err = s.store.RefreshTTL(ctx, next.SessionID, s.cfg.TTL)
	}
	if errors.Is(err, domain.ErrSessionNotFound) {
		rec := domain.NewSessionRecord(next.SessionID, next.Subject, now, s.cfg.TTL)
		if err = s.store.Create(ctx, rec, s.cfg.TTL); errors.Is(err, domain.ErrSessionExists) {
			err = nil
		}
		if err == nil {
			s.log.Info().Str("sid", next.SessionID).Msg("session record recreated on refresh")
		}
	}
	if err != nil {
		res.Degraded = true
		s.log.Warn().Err(err).Str("sid", next.SessionID).Msg("session record not refreshed")
	}

	if res.Rotated {
		s.record(ctx, domain.AuditEvent{
			Action:    domain.AuditSessionRefreshed,
			SubjectID: next.Subject,
			SessionID: next.SessionID,
			TokenID:   next.ID,
		})
		metrics.SessionsTotal.WithLabelValues("refreshed").Inc()
	}
	return res, nil
}

// Validate checks the token and reports whether conversational state is reachable.
func (s *sessionService) Validate(ctx context.Context, raw string) (*ports.SessionView, error) {
	tok, err := s.tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	view := &ports.SessionView{Token: tok, Remaining: tok.Remaining(s.clock.Now())}

	rec, err := s.store.Read(ctx, tok.SessionID)
	switch {
	case err == nil:
		view.StateAvailable = true
		view.LastActivityAt = rec.LastActivityAt
	case errors.Is(err, domain.ErrSessionNotFound):
	default:
		s.log.Warn().Err(err).Str("sid", tok.SessionID).Msg("session state unknown")
	}
	return view, nil
}

// Terminate revokes the token and deletes the session record. Expired
// tokens are accepted so a lapsed session can still be cleaned up; repeated
// calls succeed. A token that a refresh already replaced leaves the record
// alone.
func (s *sessionService) Terminate(ctx context.Context, raw string) error {
	tok, err := s.tokens.ExtractClaims(raw)
	if err != nil {
		return err
	}
	// A blacklisted token was already terminated or was rotated out by a
	// refresh; the record under its sid may belong to the live successor.
	revoked, err := s.tokens.IsRevoked(ctx, tok.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("jti", tok.ID).Msg("blacklist check on terminate degraded")
	}
	if revoked {
		s.log.Debug().Str("jti", tok.ID).Str("sid", tok.SessionID).Msg("terminate with revoked token, session kept")
		return nil
	}
	if err := s.tokens.Revoke(ctx, raw); err != nil {
		s.log.Warn().Err(err).Str("jti", tok.ID).Msg("revoke on terminate failed")
	}
	if err := s.store.Delete(ctx, tok.SessionID); err != nil {
		s.log.Warn().Err(err).Str("sid", tok.SessionID).Msg("session delete on terminate failed")
	}

	action := domain.AuditSessionTerminated
	if tok.Remaining(s.clock.Now()) == 0 {
		action = domain.AuditSessionExpired
	}
	s.record(ctx, domain.AuditEvent{
		Action:    action,
		SubjectID: tok.Subject,
		SessionID: tok.SessionID,
		TokenID:   tok.ID,
	})
	metrics.SessionsTotal.WithLabelValues("terminated").Inc()
	s.log.Info().Str("user", tok.Subject).Str("sid", tok.SessionID).Msg("session terminated")
	return nil
}

func (s *sessionService) PutTransient(ctx context.Context, sc domain.SecurityContext, key string, value json.RawMessage) error {
	if !sc.Authenticated {
		return domain.ErrNotAuthenticated
	}
	_, err := s.store.Update(ctx, sc.SessionID, func(rec *domain.SessionRecord) error {
		rec.SetState(key, value)
		rec.LastActivityAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("put transient %q: %w", key, err)
	}
	return nil
}

// GetTransient treats an unreachable store like an absent value.
func (s *sessionService) GetTransient(ctx context.Context, sc domain.SecurityContext, key string) (json.RawMessage, error) {
	if !sc.Authenticated {
		return nil, domain.ErrNotAuthenticated
	}
	rec, err := s.store.Read(ctx, sc.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.log.Warn().Err(err).Str("sid", sc.SessionID).Msg("transient read degraded to absent")
		}
		return nil, domain.ErrTransientNotFound
	}
	v, ok := rec.State(key)
	if !ok {
		return nil, domain.ErrTransientNotFound
	}
	return json.RawMessage(v), nil
}

func (s *sessionService) DeleteTransient(ctx context.Context, sc domain.SecurityContext, key string) error {
	if !sc.Authenticated {
		return domain.ErrNotAuthenticated
	}
	return s.mutateIdempotent(ctx, sc.SessionID, func(rec *domain.SessionRecord) error {
		rec.DeleteState(key)
		return nil
	})
}

func (s *sessionService) RecordNavigation(ctx context.Context, sc domain.SecurityContext, screen string) error {
	if !sc.Authenticated {
		return domain.ErrNotAuthenticated
	}
	now := s.clock.Now().UTC()
	_, err := s.store.Update(ctx, sc.SessionID, func(rec *domain.SessionRecord) error {
		rec.PushNavigation(screen, now)
		rec.LastActivityAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("record navigation: %w", err)
	}
	return nil
}

func (s *sessionService) SetErrorContext(ctx context.Context, sc domain.SecurityContext, ec domain.ErrorContext) error {
	if !sc.Authenticated {
		return domain.ErrNotAuthenticated
	}
	if ec.At.IsZero() {
		ec.At = s.clock.Now().UTC()
	}
	_, err := s.store.Update(ctx, sc.SessionID, func(rec *domain.SessionRecord) error {
		rec.ErrorContext = &ec
		return nil
	})
	if err != nil {
		return fmt.Errorf("set error context: %w", err)
	}
	return nil
}

func (s *sessionService) ClearErrorContext(ctx context.Context, sc domain.SecurityContext) error {
	if !sc.Authenticated {
		return domain.ErrNotAuthenticated
	}
	return s.mutateIdempotent(ctx, sc.SessionID, func(rec *domain.SessionRecord) error {
		rec.ErrorContext = nil
		return nil
	})
}

// Inspect returns the stored record for sessionID.
func (s *sessionService) Inspect(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	return s.store.Read(ctx, sessionID)
}

// mutateIdempotent applies mutate, treating a missing record as already done.
func (s *sessionService) mutateIdempotent(ctx context.Context, sessionID string, mutate ports.SessionMutator) error {
	_, err := s.store.Update(ctx, sessionID, mutate)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	return nil
}

func (s *sessionService) loginFailed(ctx context.Context, userID, reason string) {
	metrics.SessionsTotal.WithLabelValues("login_failed").Inc()
	s.log.Info().Str("user", userID).Str("reason", reason).Msg("login failed")
	s.record(ctx, domain.AuditEvent{Action: domain.AuditLoginFailed, SubjectID: userID, Reason: reason})
}

// record writes ev before the caller reports the transition. Failures are logged.
func (s *sessionService) record(ctx context.Context, ev domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.At = s.clock.Now().UTC()
	if err := s.audit.Record(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("action", ev.Action).Str("sid", ev.SessionID).Msg("audit write failed")
	}
}
