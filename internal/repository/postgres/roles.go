package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// RoleRepository implements role and capability grant persistence.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new role at the end of the sort order.
func (r *RoleRepository) Create(ctx context.Context, role *domain.Role) error {
	var maxSort sql.NullInt64
	if err := r.exec.QueryRow(ctx, "SELECT MAX(sortorder) FROM rbac.roles").Scan(&maxSort); err != nil {
		return fmt.Errorf("query max sortorder: %w", err)
	}
	role.SortOrder = int(maxSort.Int64) + 1

	stmt, args, err := r.builder.Insert("rbac.roles").
		Columns("shortname", "name", "description", "archetype", "sortorder").
		Values(role.Shortname, role.Name, role.Description, role.Archetype, role.SortOrder).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&role.ID); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// GetByID retrieves a role by its ID.
func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByShortname retrieves a role by its unique shortname.
func (r *RoleRepository) GetByShortname(ctx context.Context, shortname string) (*domain.Role, error) {
	return r.getOne(ctx, squirrel.Eq{"shortname": shortname})
}

func (r *RoleRepository) getOne(ctx context.Context, where squirrel.Eq) (*domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "shortname", "name", "description", "archetype", "sortorder").
		From("rbac.roles").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	var (
		role        domain.Role
		description sql.NullString
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&role.ID, &role.Shortname, &role.Name, &description, &role.Archetype, &role.SortOrder,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan role: %w", err)
	}
	if description.Valid {
		role.Description = &description.String
	}

	return &role, nil
}

// List retrieves all roles ordered by sort order.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.Select("id", "shortname", "name", "description", "archetype", "sortorder").
		From("rbac.roles").
		OrderBy("sortorder ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// Update modifies name and description of an existing role.
func (r *RoleRepository) Update(ctx context.Context, role domain.Role) error {
	stmt, args, err := r.builder.Update("rbac.roles").
		Set("name", role.Name).
		Set("description", role.Description).
		Where(squirrel.Eq{"id": role.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update role sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SwapSortOrder exchanges the sort order of two roles in one transaction.
func (r *RoleRepository) SwapSortOrder(ctx context.Context, a, b domain.Role) error {
	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin swap sortorder tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, pair := range []struct {
		id   int64
		sort int
	}{{a.ID, b.SortOrder}, {b.ID, a.SortOrder}} {
		stmt, args, err := r.builder.Update("rbac.roles").
			Set("sortorder", pair.sort).
			Where(squirrel.Eq{"id": pair.id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build swap sortorder sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("swap sortorder: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit swap sortorder tx: %w", err)
	}

	return nil
}

// DeleteCascade removes the role's assignments, its capability grants and the
// role row itself in one transaction. A partial cascade is never observable.
func (r *RoleRepository) DeleteCascade(ctx context.Context, roleID int64) error {
	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete role tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, table := range []string{"rbac.role_assignments", "rbac.role_capabilities"} {
		stmt, args, err := r.builder.Delete(table).
			Where(squirrel.Eq{"roleid": roleID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete %s sql: %w", table, err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
	}

	stmt, args, err := r.builder.Delete("rbac.roles").
		Where(squirrel.Eq{"id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	res, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if res.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete role tx: %w", err)
	}

	return nil
}

// UpsertCapability inserts or updates the grant row for
// (role, capability, context).
func (r *RoleRepository) UpsertCapability(ctx context.Context, roleID int64, capability string, permission domain.Permission, contextID int64) (port.UpsertGrantResult, error) {
	var result port.UpsertGrantResult

	stmt, args, err := r.builder.Select("id", "permission").
		From("rbac.role_capabilities").
		Where(squirrel.Eq{"roleid": roleID, "capability": capability, "contextid": contextID}).
		Limit(1).
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build select grant sql: %w", err)
	}

	var (
		existingID   int64
		existingPerm int
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&existingID, &existingPerm)
	switch {
	case err == nil:
		stmt, args, err := r.builder.Update("rbac.role_capabilities").
			Set("permission", int(permission)).
			Set("timemodified", time.Now().UTC()).
			Where(squirrel.Eq{"id": existingID}).
			ToSql()
		if err != nil {
			return result, fmt.Errorf("build update grant sql: %w", err)
		}
		if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
			return result, fmt.Errorf("update grant: %w", err)
		}
		result.GrantID = existingID
		result.Previous = domain.Permission(existingPerm)
		return result, nil

	case errors.Is(err, pgx.ErrNoRows):
		stmt, args, err := r.builder.Insert("rbac.role_capabilities").
			Columns("roleid", "capability", "permission", "contextid", "timemodified").
			Values(roleID, capability, int(permission), contextID, time.Now().UTC()).
			Suffix("RETURNING id").
			ToSql()
		if err != nil {
			return result, fmt.Errorf("build insert grant sql: %w", err)
		}
		if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&result.GrantID); err != nil {
			return result, fmt.Errorf("insert grant: %w", err)
		}
		result.Created = true
		result.Previous = domain.PermissionInherit
		return result, nil

	default:
		return result, fmt.Errorf("select grant: %w", err)
	}
}

// DeleteCapability removes the grant row for (role, capability, context).
func (r *RoleRepository) DeleteCapability(ctx context.Context, roleID int64, capability string, contextID int64) (bool, error) {
	stmt, args, err := r.builder.Delete("rbac.role_capabilities").
		Where(squirrel.Eq{"roleid": roleID, "capability": capability, "contextid": contextID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete grant sql: %w", err)
	}

	res, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete grant: %w", err)
	}

	return res.RowsAffected() > 0, nil
}

// Capabilities returns capability -> permission for the role at the context.
func (r *RoleRepository) Capabilities(ctx context.Context, roleID, contextID int64) (map[string]domain.Permission, error) {
	stmt, args, err := r.builder.Select("capability", "permission").
		From("rbac.role_capabilities").
		Where(squirrel.Eq{"roleid": roleID, "contextid": contextID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select capabilities sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	defer rows.Close()

	capabilities := make(map[string]domain.Permission)
	for rows.Next() {
		var (
			capability string
			permission int
		)
		if err := rows.Scan(&capability, &permission); err != nil {
			return nil, fmt.Errorf("scan capability: %w", err)
		}
		capabilities[capability] = domain.Permission(permission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate capabilities: %w", err)
	}

	return capabilities, nil
}

// GrantsFor returns every grant row matching any of the roles and contexts
// for the capability, ordered by permission descending.
func (r *RoleRepository) GrantsFor(ctx context.Context, roleIDs, contextIDs []int64, capability string) ([]domain.RoleCapability, error) {
	if len(roleIDs) == 0 || len(contextIDs) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.Select("id", "roleid", "capability", "permission", "contextid", "timemodified").
		From("rbac.role_capabilities").
		Where(squirrel.Eq{"roleid": roleIDs, "contextid": contextIDs, "capability": capability}).
		OrderBy("permission DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select grants sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []domain.RoleCapability
	for rows.Next() {
		var (
			grant      domain.RoleCapability
			permission int
		)
		if err := rows.Scan(&grant.ID, &grant.RoleID, &grant.Capability, &permission, &grant.ContextID, &grant.TimeModified); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grant.Permission = domain.Permission(permission)
		grants = append(grants, grant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}

	return grants, nil
}

// UsersWithRole lists users holding the role in the context, ordered by last
// name then first name.
func (r *RoleRepository) UsersWithRole(ctx context.Context, roleID, contextID int64) ([]domain.User, error) {
	stmt, args, err := r.builder.Select("u.id", "u.username", "u.firstname", "u.lastname").
		From("rbac.users u").
		Join("rbac.role_assignments ra ON ra.userid = u.id").
		Where(squirrel.Eq{"ra.roleid": roleID, "ra.contextid": contextID}).
		OrderBy("u.lastname ASC", "u.firstname ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build users with role sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query users with role: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Username, &user.FirstName, &user.LastName); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users with role: %w", err)
	}

	return users, nil
}

func scanRoles(rows pgx.Rows) ([]domain.Role, error) {
	roles := make([]domain.Role, 0)
	for rows.Next() {
		var (
			role        domain.Role
			description sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Shortname, &role.Name, &description, &role.Archetype, &role.SortOrder); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if description.Valid {
			role.Description = &description.String
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

var _ port.RoleRepository = (*RoleRepository)(nil)
