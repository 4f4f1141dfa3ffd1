package port

import (
	"context"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// AuditRepository persists the append-only audit trail.
type AuditRepository interface {
	// Insert appends one audit row and returns its id.
	Insert(ctx context.Context, event domain.AuditEvent) (int64, error)
	// List returns audit rows matching the filter, newest first.
	List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}
