package ports

import "context"

// OwnershipResolver maps a domain resource to the principal id that owns it.
// It returns domain.ErrResourceNotFound for unknown resources.
type OwnershipResolver interface {
	ResolveOwner(ctx context.Context, kind, resourceID string) (string, error)
}
