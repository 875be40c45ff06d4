package service

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

type authorizationService struct {
	owners ports.OwnershipResolver
	log    zerolog.Logger
}

// NewAuthorizationService returns an AuthorizationService. owners may be nil,
// in which case CanAccessOwned only ever allows administrators.
func NewAuthorizationService(owners ports.OwnershipResolver, log zerolog.Logger) ports.AuthorizationService {
	return &authorizationService{owners: owners, log: log}
}

// HasRole reports whether sc is authenticated with a role that satisfies role.
func (s *authorizationService) HasRole(sc domain.SecurityContext, role domain.Role) bool {
	return sc.Authenticated && domain.RoleSatisfies(sc.Role, role)
}

// CanAccessResource allows administrators everywhere and regular users only
// on resources whose owner id equals their principal id.
func (s *authorizationService) CanAccessResource(sc domain.SecurityContext, ownerID, resourceID string) domain.Decision {
	d := decide(sc, ownerID)
	s.observe(sc, resourceID, d)
	return d
}

// CanAccessOwned resolves the owner of (kind, resourceID) before deciding.
// Unknown resources and resolver failures deny.
func (s *authorizationService) CanAccessOwned(ctx context.Context, sc domain.SecurityContext, kind, resourceID string) domain.Decision {
	if !sc.Authenticated {
		return s.record(sc, resourceID, domain.Deny(domain.ReasonNotAuthenticated))
	}
	if sc.Role == domain.RoleAdmin {
		return s.record(sc, resourceID, domain.Allow(domain.ReasonAdmin))
	}
	if s.owners == nil {
		return s.record(sc, resourceID, domain.Deny(domain.ReasonNotAuthorized))
	}

	ownerID, err := s.owners.ResolveOwner(ctx, kind, resourceID)
	if err != nil {
		if !errors.Is(err, domain.ErrResourceNotFound) {
			s.log.Error().Err(err).Str("kind", kind).Str("resource", resourceID).Msg("ownership lookup failed")
		}
		return s.record(sc, resourceID, domain.Deny(domain.ReasonNotAuthorized))
	}
	return s.CanAccessResource(sc, ownerID, resourceID)
}

func (s *authorizationService) record(sc domain.SecurityContext, resourceID string, d domain.Decision) domain.Decision {
	s.observe(sc, resourceID, d)
	return d
}

func (s *authorizationService) observe(sc domain.SecurityContext, resourceID string, d domain.Decision) {
	metrics.AuthorizationDecisionsTotal.WithLabelValues(strconv.FormatBool(d.Allowed), d.Reason).Inc()
	if !d.Allowed {
		s.log.Info().
			Str("principal", sc.Principal.ID).
			Str("resource", resourceID).
			Str("reason", d.Reason).
			Msg("access denied")
	}
}

func decide(sc domain.SecurityContext, ownerID string) domain.Decision {
	switch {
	case !sc.Authenticated:
		return domain.Deny(domain.ReasonNotAuthenticated)
	case sc.Role == domain.RoleAdmin:
		return domain.Allow(domain.ReasonAdmin)
	case sc.Role == domain.RoleUser && ownerID != "" && ownerID == sc.Principal.ID:
		return domain.Allow(domain.ReasonOwner)
	default:
		return domain.Deny(domain.ReasonNotAuthorized)
	}
}
