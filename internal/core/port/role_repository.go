package port

import (
	"context"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// UpsertGrantResult reports what a capability upsert did so the caller can
// pick the right audit event.
type UpsertGrantResult struct {
	GrantID  int64
	Created  bool
	Previous domain.Permission
}

// RoleRepository handles role definitions and capability grants.
type RoleRepository interface {
	// Create inserts a new role, assigning its id and sort order.
	Create(ctx context.Context, role *domain.Role) error
	// GetByID returns a role or repository.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Role, error)
	// GetByShortname returns a role by its unique shortname or
	// repository.ErrNotFound.
	GetByShortname(ctx context.Context, shortname string) (*domain.Role, error)
	// List returns all roles ordered by sort order.
	List(ctx context.Context) ([]domain.Role, error)
	// Update modifies name and description of an existing role.
	Update(ctx context.Context, role domain.Role) error
	// SwapSortOrder exchanges the sort order of two roles atomically.
	SwapSortOrder(ctx context.Context, a, b domain.Role) error
	// DeleteCascade removes the role's assignments, its capability grants and
	// the role row in one transaction.
	DeleteCascade(ctx context.Context, roleID int64) error

	// UpsertCapability inserts or updates the grant row for
	// (role, capability, context).
	UpsertCapability(ctx context.Context, roleID int64, capability string, permission domain.Permission, contextID int64) (UpsertGrantResult, error)
	// DeleteCapability removes the grant row; false when none existed.
	DeleteCapability(ctx context.Context, roleID int64, capability string, contextID int64) (bool, error)
	// Capabilities returns capability -> permission for a role at a context.
	Capabilities(ctx context.Context, roleID, contextID int64) (map[string]domain.Permission, error)
	// GrantsFor returns every grant row matching any of the roles and any of
	// the contexts for the capability. This is the resolver's batched query.
	GrantsFor(ctx context.Context, roleIDs, contextIDs []int64, capability string) ([]domain.RoleCapability, error)
	// UsersWithRole lists users holding the role in the context, ordered by
	// last name then first name.
	UsersWithRole(ctx context.Context, roleID, contextID int64) ([]domain.User, error)
}
