package port

import (
	"context"
	"time"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// AssignmentRepository handles (role, user, context) assignment tuples.
type AssignmentRepository interface {
	// Get returns the assignment for the exact tuple or
	// repository.ErrNotFound.
	Get(ctx context.Context, roleID, userID, contextID int64) (*domain.RoleAssignment, error)
	// Create inserts a new assignment and sets its id.
	Create(ctx context.Context, assignment *domain.RoleAssignment) error
	// Delete removes the tuple; false when no row existed.
	Delete(ctx context.Context, roleID, userID, contextID int64) (bool, error)
	// RolesOfUser returns roles assigned directly in the exact context,
	// ordered by role sort order. Assignments expired before now are
	// excluded, matching what the resolver sees.
	RolesOfUser(ctx context.Context, userID, contextID int64, now time.Time) ([]domain.Role, error)
	// RoleIDsInContexts returns the distinct role ids assigned to the user in
	// any of the given contexts, skipping assignments expired before now.
	// This is the resolver's batched role-collection query.
	RoleIDsInContexts(ctx context.Context, userID int64, contextIDs []int64, now time.Time) ([]int64, error)
}
