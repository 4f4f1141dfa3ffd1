package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// AssignmentRepository implements role assignment persistence.
type AssignmentRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAssignmentRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewAssignmentRepository(exec pgExecutor) *AssignmentRepository {
	return &AssignmentRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get retrieves the assignment for the exact (role, user, context) tuple.
func (r *AssignmentRepository) Get(ctx context.Context, roleID, userID, contextID int64) (*domain.RoleAssignment, error) {
	stmt, args, err := r.builder.Select("id", "roleid", "userid", "contextid", "expires_at", "timemodified").
		From("rbac.role_assignments").
		Where(squirrel.Eq{"roleid": roleID, "userid": userID, "contextid": contextID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select assignment sql: %w", err)
	}

	var assignment domain.RoleAssignment
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&assignment.ID,
		&assignment.RoleID,
		&assignment.UserID,
		&assignment.ContextID,
		&assignment.ExpiresAt,
		&assignment.TimeModified,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan assignment: %w", err)
	}

	return &assignment, nil
}

// Create inserts a new assignment and sets its generated id.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *domain.RoleAssignment) error {
	stmt, args, err := r.builder.Insert("rbac.role_assignments").
		Columns("roleid", "userid", "contextid", "expires_at", "timemodified").
		Values(assignment.RoleID, assignment.UserID, assignment.ContextID, assignment.ExpiresAt, assignment.TimeModified).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert assignment sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&assignment.ID); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}

	return nil
}

// Delete removes the (role, user, context) tuple; false when no row existed.
func (r *AssignmentRepository) Delete(ctx context.Context, roleID, userID, contextID int64) (bool, error) {
	stmt, args, err := r.builder.Delete("rbac.role_assignments").
		Where(squirrel.Eq{"roleid": roleID, "userid": userID, "contextid": contextID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete assignment sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete assignment: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// RolesOfUser returns roles assigned directly in the exact context, ordered
// by role sort order. Expired assignments are filtered the same way
// RoleIDsInContexts filters them.
func (r *AssignmentRepository) RolesOfUser(ctx context.Context, userID, contextID int64, now time.Time) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("r.id", "r.shortname", "r.name", "r.description", "r.archetype", "r.sortorder").
		From("rbac.roles r").
		Join("rbac.role_assignments ra ON ra.roleid = r.id").
		Where(squirrel.Eq{"ra.userid": userID, "ra.contextid": contextID}).
		Where(squirrel.Or{
			squirrel.Eq{"ra.expires_at": nil},
			squirrel.Gt{"ra.expires_at": now},
		}).
		OrderBy("r.sortorder ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build roles of user sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles of user: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// RoleIDsInContexts returns the distinct role ids assigned to the user in any
// of the contexts, skipping assignments expired before now. A single query
// covers the whole ancestor chain.
func (r *AssignmentRepository) RoleIDsInContexts(ctx context.Context, userID int64, contextIDs []int64, now time.Time) ([]int64, error) {
	if len(contextIDs) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.Select("DISTINCT roleid").
		From("rbac.role_assignments").
		Where(squirrel.Eq{"userid": userID, "contextid": contextIDs}).
		Where(squirrel.Or{
			squirrel.Eq{"expires_at": nil},
			squirrel.Gt{"expires_at": now},
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build role ids sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query role ids: %w", err)
	}
	defer rows.Close()

	var roleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan role id: %w", err)
		}
		roleIDs = append(roleIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role ids: %w", err)
	}

	return roleIDs, nil
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
