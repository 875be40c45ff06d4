package ports

import (
	"context"

	"github.com/carddemo/auth-gateway/internal/core/domain"
)

// AuditSink persists session lifecycle events.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}
