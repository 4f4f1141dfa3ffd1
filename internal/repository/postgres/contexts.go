package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// ContextRepository implements context tree persistence.
type ContextRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewContextRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewContextRepository(exec pgExecutor) *ContextRepository {
	return &ContextRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByLevelInstance retrieves the context for a (level, instance) pair.
func (r *ContextRepository) GetByLevelInstance(ctx context.Context, level domain.ContextLevel, instanceID int64) (*domain.Context, error) {
	stmt, args, err := r.builder.Select("id", "contextlevel", "instanceid", "path", "depth").
		From("rbac.contexts").
		Where(squirrel.Eq{"contextlevel": int(level), "instanceid": instanceID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select context sql: %w", err)
	}

	return r.scanContext(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves a context by primary key.
func (r *ContextRepository) GetByID(ctx context.Context, id int64) (*domain.Context, error) {
	stmt, args, err := r.builder.Select("id", "contextlevel", "instanceid", "path", "depth").
		From("rbac.contexts").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select context by id sql: %w", err)
	}

	return r.scanContext(r.exec.QueryRow(ctx, stmt, args...))
}

// Create inserts a new context and materializes its path. The path embeds the
// generated id, so the insert and the path update run in one transaction.
func (r *ContextRepository) Create(ctx context.Context, level domain.ContextLevel, instanceID int64, parent *domain.Context) (*domain.Context, error) {
	depth := 1
	parentPath := ""
	if parent != nil {
		depth = parent.Depth + 1
		parentPath = parent.Path
	}

	tx, err := r.exec.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create context tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, args, err := r.builder.Insert("rbac.contexts").
		Columns("contextlevel", "instanceid", "path", "depth").
		Values(int(level), instanceID, "", depth).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert context sql: %w", err)
	}

	var id int64
	if err := tx.QueryRow(ctx, stmt, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert context: %w", err)
	}

	path := fmt.Sprintf("%s/%d", parentPath, id)

	stmt, args, err = r.builder.Update("rbac.contexts").
		Set("path", path).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update context path sql: %w", err)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("update context path: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create context tx: %w", err)
	}

	return &domain.Context{
		ID:         id,
		Level:      level,
		InstanceID: instanceID,
		Path:       path,
		Depth:      depth,
	}, nil
}

// GetMany retrieves the contexts for the given ids ordered by depth.
func (r *ContextRepository) GetMany(ctx context.Context, ids []int64) ([]domain.Context, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	stmt, args, err := r.builder.Select("id", "contextlevel", "instanceid", "path", "depth").
		From("rbac.contexts").
		Where(squirrel.Eq{"id": ids}).
		OrderBy("depth ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select contexts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query contexts: %w", err)
	}
	defer rows.Close()

	var contexts []domain.Context
	for rows.Next() {
		var (
			c     domain.Context
			level int
		)
		if err := rows.Scan(&c.ID, &level, &c.InstanceID, &c.Path, &c.Depth); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		c.Level = domain.ContextLevel(level)
		contexts = append(contexts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}

	return contexts, nil
}

func (r *ContextRepository) scanContext(row pgx.Row) (*domain.Context, error) {
	var (
		c     domain.Context
		level int
	)
	if err := row.Scan(&c.ID, &level, &c.InstanceID, &c.Path, &c.Depth); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan context: %w", err)
	}
	c.Level = domain.ContextLevel(level)
	return &c, nil
}

var _ port.ContextRepository = (*ContextRepository)(nil)
