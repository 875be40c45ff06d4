// Package sessionclient keeps a client's session alive: it tracks token
// expiry, warns before the session lapses, refreshes near expiry and logs
// the user out when the session ends.
package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	defaultCheckInterval    = 30 * time.Second
	defaultWarningThreshold = 5 * time.Minute
	defaultRefreshThreshold = 2 * time.Minute
	defaultRequestTimeout   = 10 * time.Second
)

// Reasons passed to OnTerminate.
const (
	ReasonSessionExpired = "SESSION_EXPIRED"
	ReasonUserLogout     = "USER_LOGOUT"
)

var (
	ErrAlreadyInitialized = errors.New("sessionclient: session already active")
	ErrInvalidToken       = errors.New("sessionclient: token has no usable claims")
	ErrNotActive          = errors.New("sessionclient: no active session")
	ErrRefreshInFlight    = errors.New("sessionclient: refresh already in flight")
)

// Backend is the server side of the session.
type Backend interface {
	Refresh(ctx context.Context, token string) (string, error)
	Terminate(ctx context.Context, token string) error
}

// Options configures a Manager. Zero values take defaults.
type Options struct {
	CheckInterval    time.Duration
	WarningThreshold time.Duration
	RefreshThreshold time.Duration
	RequestTimeout   time.Duration
	// RefreshOnlyWhenActive skips automatic refresh unless Touch was called
	// since the last token was installed, so an idle user still times out.
	RefreshOnlyWhenActive bool

	// OnWarning fires once each time remaining time drops below
	// WarningThreshold.
	OnWarning func(remaining time.Duration)
	// OnTerminate fires when the session expires or is terminated.
	OnTerminate func(reason string)
	// OnRefreshed fires after a new token is installed.
	OnRefreshed func(token string)

	Clock  clockwork.Clock
	Logger zerolog.Logger
	Audit  AuditSink
}

type clientClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"sid"`
}

// Manager drives one client session. It runs a single ticker loop; all
// state is guarded by mu and callbacks run outside the lock.
type Manager struct {
	backend Backend
	opts    Options
	clock   clockwork.Clock
	log     zerolog.Logger
	audit   AuditSink

	mu         sync.Mutex
	state      State
	token      string
	claims     clientClaims
	expiresAt  time.Time
	warned     bool
	refreshing bool
	touched    bool
	// alive is cleared on expiry, Terminate and Close; every scheduled
	// callback checks it first.
	alive  bool
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Manager in StateUninitialized.
func New(backend Backend, opts Options) *Manager {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = defaultWarningThreshold
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = defaultRefreshThreshold
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var audit AuditSink = nopAuditSink{}
	if opts.Audit != nil {
		audit = opts.Audit
	}
	return &Manager{
		backend: backend,
		opts:    opts,
		clock:   clock,
		log:     opts.Logger,
		audit:   audit,
		state:   StateUninitialized,
	}
}

// Initialize installs token and starts the periodic check. A manager whose
// previous session expired or was terminated may be initialized again.
func (m *Manager) Initialize(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state.live() || m.state == StateInitializing {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	prev := m.state
	m.state = StateInitializing

	claims, err := parseClaims(token)
	if err != nil {
		m.state = prev
		m.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.token = token
	m.claims = claims
	m.expiresAt = claims.ExpiresAt.Time
	m.warned = false
	m.refreshing = false
	m.touched = false
	m.alive = true
	m.ctx, m.cancel = loopCtx, cancel
	m.state = StateActive

	ticker := m.clock.NewTicker(m.opts.CheckInterval)
	m.mu.Unlock()

	m.record(EventSessionCreated, claims, "")
	go m.run(loopCtx, ticker)
	return nil
}

func (m *Manager) run(ctx context.Context, ticker clockwork.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Check()
		}
	}
}

// Check evaluates the session once and returns the resulting state. The
// ticker loop calls it; tests and UIs may call it directly.
func (m *Manager) Check() State {
	m.mu.Lock()
	if !m.alive {
		state := m.state
		m.mu.Unlock()
		return state
	}

	remaining := m.expiresAt.Sub(m.clock.Now())
	if remaining <= 0 {
		m.state = StateExpired
		m.stopLocked()
		claims := m.claims
		m.mu.Unlock()

		m.record(EventSessionExpired, claims, ReasonSessionExpired)
		if m.opts.OnTerminate != nil {
			m.opts.OnTerminate(ReasonSessionExpired)
		}
		return StateExpired
	}

	var warn bool
	if remaining <= m.opts.WarningThreshold && !m.warned {
		m.warned = true
		m.state = StateWarning
		warn = true
	}

	if remaining <= m.opts.RefreshThreshold && m.shouldRefreshLocked() {
		m.refreshing = true
		go m.refresh(m.ctx, m.token)
	}

	state := m.state
	m.mu.Unlock()

	if warn && m.opts.OnWarning != nil && m.isAlive() {
		m.opts.OnWarning(remaining)
	}
	return state
}

func (m *Manager) shouldRefreshLocked() bool {
	if m.refreshing {
		return false
	}
	return !m.opts.RefreshOnlyWhenActive || m.touched
}

// refresh exchanges tok for a new token and commits it if the session is
// still alive and still on tok.
func (m *Manager) refresh(ctx context.Context, tok string) {
	if _, err := m.exchange(ctx, tok); err != nil && !errors.Is(err, ErrNotActive) {
		m.log.Warn().Err(err).Msg("session refresh failed, retrying on next check")
	}
}

func (m *Manager) exchange(ctx context.Context, tok string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	next, err := m.backend.Refresh(reqCtx, tok)

	m.mu.Lock()
	m.refreshing = false
	if !m.alive || m.token != tok {
		m.mu.Unlock()
		return "", ErrNotActive
	}
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	claims, err := parseClaims(next)
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	if next == tok {
		m.mu.Unlock()
		return next, nil
	}

	m.token = next
	m.claims = claims
	m.expiresAt = claims.ExpiresAt.Time
	m.warned = false
	m.touched = false
	m.state = StateActive
	m.mu.Unlock()

	m.record(EventSessionRefreshed, claims, "")
	if m.opts.OnRefreshed != nil && m.isAlive() {
		m.opts.OnRefreshed(next)
	}
	return next, nil
}

// Extend refreshes now, regardless of thresholds. It is the answer to a
// warning the user acknowledged with "stay signed in".
func (m *Manager) Extend(ctx context.Context) error {
	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return ErrNotActive
	}
	if m.refreshing {
		m.mu.Unlock()
		return ErrRefreshInFlight
	}
	m.refreshing = true
	tok := m.token
	m.mu.Unlock()

	_, err := m.exchange(ctx, tok)
	return err
}

// Touch records user activity for RefreshOnlyWhenActive.
func (m *Manager) Touch() {
	m.mu.Lock()
	m.touched = true
	m.mu.Unlock()
}

// Terminate ends the session locally and asks the server to revoke it.
// Server failures are logged; local logout always succeeds. After an expiry
// OnTerminate has already fired, so only the server cleanup runs.
func (m *Manager) Terminate(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.state == StateUninitialized || m.state == StateTerminated {
		m.mu.Unlock()
		return
	}
	expired := m.state == StateExpired
	tok := m.token
	claims := m.claims
	m.token = ""
	m.state = StateTerminated
	m.stopLocked()
	m.mu.Unlock()

	m.record(EventSessionTerminated, claims, reason)
	if m.opts.OnTerminate != nil && !expired {
		m.opts.OnTerminate(reason)
	}

	if tok == "" {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()
	if err := m.backend.Terminate(reqCtx, tok); err != nil {
		m.log.Warn().Err(err).Str("sid", claims.SessionID).Msg("server-side terminate failed")
	}
}

// Close stops the manager and drops a live session without contacting the
// server. Callbacks re-check liveness just before running, so only one that
// had already passed that check can still complete after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopLocked()
	if m.state.live() {
		m.token = ""
		m.state = StateTerminated
	}
	m.mu.Unlock()
}

func (m *Manager) isAlive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *Manager) stopLocked() {
	m.alive = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the current token, or "" when the session is not live.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.live() {
		return ""
	}
	return m.token
}

// Remaining returns the time left before the token expires.
func (m *Manager) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.live() {
		return 0
	}
	return m.expiresAt.Sub(m.clock.Now())
}

func (m *Manager) record(typ string, claims clientClaims, reason string) {
	m.audit.Record(AuditEvent{
		Type:      typ,
		SessionID: claims.SessionID,
		Subject:   claims.Subject,
		Reason:    reason,
		At:        m.clock.Now(),
	})
}

// parseClaims reads the claims without verifying the signature; the client
// only needs the expiry, and the server verifies every use.
func parseClaims(token string) (clientClaims, error) {
	var claims clientClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return clientClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ExpiresAt == nil {
		return clientClaims{}, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	return claims, nil
}
