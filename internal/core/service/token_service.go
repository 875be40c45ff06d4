package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
	"github.com/carddemo/auth-gateway/internal/pkg/keys"
)

const (
	claimsVersion = 1

	defaultTokenTTL      = 30 * time.Minute
	defaultRefreshWindow = 5 * time.Minute
)

var errClaimsSchema = errors.New("claims schema")

// tokenClaims is the fixed claim set carried by every token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role      domain.Role `json:"role"`
	SessionID string      `json:"sid"`
	Version   int         `json:"ver"`
}

// Validate is called by the jwt parser after the registered claims pass.
func (c tokenClaims) Validate() error {
	if c.Version != claimsVersion {
		return fmt.Errorf("%w: unsupported version %d", errClaimsSchema, c.Version)
	}
	if c.Subject == "" || c.ID == "" || c.SessionID == "" {
		return fmt.Errorf("%w: missing sub, jti or sid", errClaimsSchema)
	}
	if _, ok := domain.ParseRole(string(c.Role)); !ok {
		return fmt.Errorf("%w: unknown role %q", errClaimsSchema, c.Role)
	}
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return fmt.Errorf("%w: missing iat or exp", errClaimsSchema)
	}
	return nil
}

// TokenConfig holds token lifetimes.
type TokenConfig struct {
	Issuer string
	TTL    time.Duration
	// RefreshWindow is how close to expiry a token must be before Refresh rotates it.
	RefreshWindow time.Duration
}

// TokenService issues, validates, refreshes and revokes signed tokens.
type TokenService struct {
	key       *keys.SigningKey
	blacklist ports.Blacklist
	cfg       TokenConfig
	clock     clockwork.Clock
	log       zerolog.Logger

	parser    *jwt.Parser
	extractor *jwt.Parser
	refreshes singleflight.Group
}

var _ ports.TokenService = (*TokenService)(nil)

// NewTokenService returns a TokenService. A nil key fails with
// domain.ErrSigningKeyUnavailable; a nil clock uses the real clock.
func NewTokenService(key *keys.SigningKey, blacklist ports.Blacklist, cfg TokenConfig, clock clockwork.Clock, log zerolog.Logger) (*TokenService, error) {
	if key == nil || key.Method == nil {
		return nil, domain.ErrSigningKeyUnavailable
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTokenTTL
	}
	if cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = defaultRefreshWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	methods := jwt.WithValidMethods([]string{key.Method.Alg()})
	opts := []jwt.ParserOption{methods, jwt.WithTimeFunc(clock.Now), jwt.WithExpirationRequired(), jwt.WithIssuedAt()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &TokenService{
		key:       key,
		blacklist: blacklist,
		cfg:       cfg,
		clock:     clock,
		log:       log,
		parser:    jwt.NewParser(opts...),
		extractor: jwt.NewParser(methods, jwt.WithoutClaimsValidation()),
	}, nil
}

// Issue signs a new token for principal bound to sessionID.
func (s *TokenService) Issue(principal domain.Principal, sessionID string) (*domain.Token, error) {
	if principal.ID == "" || sessionID == "" {
		return nil, errors.New("issue token: subject and session id are required")
	}
	role, ok := domain.ParseRole(string(principal.Role))
	if !ok {
		role = domain.RoleUser
	}
	jti, err := newTokenID()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	// NumericDate has second precision; truncating keeps Token and claims equal.
	now := s.clock.Now().UTC().Truncate(time.Second)
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   principal.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
		Role:      role,
		SessionID: sessionID,
		Version:   claimsVersion,
	}
	raw, err := jwt.NewWithClaims(s.key.Method, claims).SignedString(s.key.Sign)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningKeyUnavailable, err)
	}

	metrics.TokensIssuedTotal.WithLabelValues(string(role)).Inc()
	return toToken(raw, &claims), nil
}

// Validate checks signature, schema, expiry and the blacklist.
func (s *TokenService) Validate(ctx context.Context, raw string) (*domain.Token, error) {
	tok, err := s.validate(ctx, raw)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}
	metrics.TokenValidationsTotal.WithLabelValues("valid").Inc()
	return tok, nil
}

func (s *TokenService) validate(ctx context.Context, raw string) (*domain.Token, error) {
	var claims tokenClaims
	if _, err := s.parser.ParseWithClaims(raw, &claims, s.verifyKey); err != nil {
		return nil, classify(err)
	}
	tok := toToken(raw, &claims)

	revoked, err := s.blacklist.IsRevoked(ctx, tok.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("jti", tok.ID).Msg("blacklist check degraded")
	}
	if revoked {
		return nil, domain.ErrTokenBlacklisted
	}
	return tok, nil
}

// ExtractClaims verifies the signature and schema but ignores expiry and the
// blacklist, so terminate can identify an already-expired session.
func (s *TokenService) ExtractClaims(raw string) (*domain.Token, error) {
	var claims tokenClaims
	if _, err := s.extractor.ParseWithClaims(raw, &claims, s.verifyKey); err != nil {
		return nil, classify(err)
	}
	if err := claims.Validate(); err != nil {
		return nil, classify(err)
	}
	return toToken(raw, &claims), nil
}

// Revoke blacklists raw until its natural expiry. Expired tokens are a no-op.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	tok, err := s.ExtractClaims(raw)
	if err != nil {
		return err
	}
	if tok.Remaining(s.clock.Now()) == 0 {
		return nil
	}
	if _, err := s.blacklist.Revoke(ctx, tok.ID, tok.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked checks the blacklist for tokenID. When the blacklist is degraded
// the mirror's answer comes back together with the error.
func (s *TokenService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.blacklist.IsRevoked(ctx, tokenID)
}

// Refresh rotates raw when it is inside the refresh window. Outside the
// window the same token comes back unchanged. Concurrent refreshes of one
// token share a single rotation; a late caller that arrives after the
// rotation sees domain.ErrTokenBlacklisted.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*domain.Token, error) {
	old, err := s.Validate(ctx, raw)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}
	if old.Remaining(s.clock.Now()) > s.cfg.RefreshWindow {
		metrics.TokenRefreshesTotal.WithLabelValues("not_due").Inc()
		return old, nil
	}

	v, err, _ := s.refreshes.Do(old.ID, func() (any, error) {
		return s.rotate(ctx, old)
	})
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
		return nil, err
	}
	metrics.TokenRefreshesTotal.WithLabelValues("rotated").Inc()
	return v.(*domain.Token), nil
}

func (s *TokenService) rotate(ctx context.Context, old *domain.Token) (*domain.Token, error) {
	revoked, err := s.blacklist.Revoke(ctx, old.ID, old.ExpiresAt)
	if err != nil {
		s.log.Warn().Err(err).Str("jti", old.ID).Msg("blacklist revoke degraded")
	}
	if !revoked {
		return nil, fmt.Errorf("refresh token: %w", domain.ErrTokenBlacklisted)
	}

	next, err := s.Issue(old.Principal(), old.SessionID)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	s.log.Debug().Str("sid", old.SessionID).Str("old_jti", old.ID).Str("jti", next.ID).Msg("token rotated")
	return next, nil
}

func (s *TokenService) verifyKey(*jwt.Token) (any, error) {
	return s.key.Verify, nil
}

// classify maps jwt parser failures onto the token failure taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, errClaimsSchema):
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", domain.ErrMalformedToken, err)
	}
}

func toToken(raw string, c *tokenClaims) *domain.Token {
	return &domain.Token{
		Raw:       raw,
		ID:        c.ID,
		Subject:   c.Subject,
		Role:      c.Role,
		SessionID: c.SessionID,
		IssuedAt:  c.IssuedAt.Time.UTC(),
		ExpiresAt: c.ExpiresAt.Time.UTC(),
	}
}

func newTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
