package port

import (
	"context"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// ContextRepository handles context tree persistence.
type ContextRepository interface {
	// GetByLevelInstance returns the context for a (level, instance) pair or
	// repository.ErrNotFound.
	GetByLevelInstance(ctx context.Context, level domain.ContextLevel, instanceID int64) (*domain.Context, error)
	// GetByID returns a context by primary key or repository.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*domain.Context, error)
	// Create inserts a new context under parent (nil for the root) and
	// materializes its path. The insert and path update run in one
	// transaction.
	Create(ctx context.Context, level domain.ContextLevel, instanceID int64, parent *domain.Context) (*domain.Context, error)
	// GetMany returns the contexts for the given ids ordered by depth.
	GetMany(ctx context.Context, ids []int64) ([]domain.Context, error)
}
