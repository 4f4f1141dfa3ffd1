package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// ContextService manages the context tree. Contexts are created lazily on
// first reference and are immutable afterwards; nothing in this service
// moves or deletes them.
type ContextService struct {
	contexts port.ContextRepository
	log      *zap.Logger
}

// NewContextService constructs a ContextService.
func NewContextService(contexts port.ContextRepository, log *zap.Logger) *ContextService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContextService{contexts: contexts, log: log}
}

// SystemContext returns (creating if absent) the singleton root context.
func (s *ContextService) SystemContext(ctx context.Context) (*domain.Context, error) {
	return s.ContextFor(ctx, domain.LevelSystem, 0, true)
}

// UserContext returns (creating if absent) the context for a user.
func (s *ContextService) UserContext(ctx context.Context, userID int64) (*domain.Context, error) {
	return s.ContextFor(ctx, domain.LevelUser, userID, true)
}

// ContextFor returns the context for a (level, instance) pair, creating it
// when create is true. Non-system contexts hang directly off the system
// context; their path is the parent path plus their own id.
func (s *ContextService) ContextFor(ctx context.Context, level domain.ContextLevel, instanceID int64, create bool) (*domain.Context, error) {
	existing, err := s.contexts.GetByLevelInstance(ctx, level, instanceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup context: %w", err)
	}
	if !create {
		return nil, err
	}

	var parent *domain.Context
	if level != domain.LevelSystem || instanceID != 0 {
		parent, err = s.SystemContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve parent context: %w", err)
		}
	}

	created, err := s.contexts.Create(ctx, level, instanceID, parent)
	if err != nil {
		// Lost a creation race: someone else inserted the same pair first.
		if existing, lookupErr := s.contexts.GetByLevelInstance(ctx, level, instanceID); lookupErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create context: %w", err)
	}

	s.log.Debug("context created",
		zap.Int64("context_id", created.ID),
		zap.String("level", created.Level.String()),
		zap.Int64("instance_id", created.InstanceID),
	)

	return created, nil
}

// ContextByID returns a context by primary key.
func (s *ContextService) ContextByID(ctx context.Context, id int64) (*domain.Context, error) {
	return s.contexts.GetByID(ctx, id)
}

// AncestorChain returns the context ids on the materialized path, root first,
// including the context itself.
func (s *ContextService) AncestorChain(c domain.Context) []int64 {
	return c.PathIDs()
}

// ParentContexts returns the ancestors of c ordered root first, excluding c.
func (s *ContextService) ParentContexts(ctx context.Context, c domain.Context) ([]domain.Context, error) {
	ids := s.AncestorChain(c)
	if len(ids) <= 1 {
		return nil, nil
	}

	parents, err := s.contexts.GetMany(ctx, ids[:len(ids)-1])
	if err != nil {
		return nil, fmt.Errorf("load parent contexts: %w", err)
	}

	return parents, nil
}
