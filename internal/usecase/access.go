package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
)

// AccessService answers "can user U do X in context C?". Verdicts are
// memoized per (user, capability, context); the mutation paths in
// RoleService and AssignmentService bust the cache.
//
// Checks fail closed: any resolution error yields a deny, never a grant.
type AccessService struct {
	assignments port.AssignmentRepository
	roles       port.RoleRepository
	cache       port.VerdictCache
	log         *zap.Logger
	now         func() time.Time
}

// NewAccessService constructs an AccessService.
func NewAccessService(assignments port.AssignmentRepository, roles port.RoleRepository, cache port.VerdictCache, log *zap.Logger) *AccessService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccessService{
		assignments: assignments,
		roles:       roles,
		cache:       cache,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HasCapability reports whether the user holds the capability in the
// context, considering every role assigned to them anywhere on the
// context's ancestor chain. Guests (user id 0) never hold capabilities.
// Errors during resolution deny access and are logged; they are never
// surfaced as a grant.
func (s *AccessService) HasCapability(ctx context.Context, capability string, userID int64, node domain.Context) bool {
	if userID <= 0 {
		return false
	}

	var handle string
	if s.cache != nil {
		verdict, ok, h, err := s.cache.Get(ctx, userID, capability, node.ID)
		if err != nil {
			s.log.Warn("verdict cache read failed", zap.Error(err))
		} else if ok {
			return verdict
		} else {
			handle = h
		}
	}

	permission, err := s.ResolvePermission(ctx, capability, userID, node)
	if err != nil {
		s.log.Error("capability resolution failed, denying",
			zap.String("capability", capability),
			zap.Int64("user_id", userID),
			zap.Int64("context_id", node.ID),
			zap.Error(err),
		)
		return false
	}

	verdict := permission == domain.PermissionAllow

	// The handle was pinned before resolution, so an invalidation that
	// landed in between orphans this write instead of caching over it.
	if s.cache != nil && handle != "" {
		if err := s.cache.Set(ctx, handle, verdict); err != nil {
			s.log.Warn("verdict cache write failed", zap.Error(err))
		}
	}

	return verdict
}

// ResolvePermission computes the aggregate permission the user's roles hold
// for the capability across the context's ancestor chain, without touching
// the cache. Two batched queries cover the whole chain: one collecting role
// ids, one collecting grant rows.
func (s *AccessService) ResolvePermission(ctx context.Context, capability string, userID int64, node domain.Context) (domain.Permission, error) {
	chain := node.PathIDs()

	roleIDs, err := s.assignments.RoleIDsInContexts(ctx, userID, chain, s.now())
	if err != nil {
		return domain.PermissionInherit, fmt.Errorf("collect user roles: %w", err)
	}
	if len(roleIDs) == 0 {
		return domain.PermissionInherit, nil
	}

	grants, err := s.roles.GrantsFor(ctx, roleIDs, chain, capability)
	if err != nil {
		return domain.PermissionInherit, fmt.Errorf("collect capability grants: %w", err)
	}

	return reducePermissions(grants), nil
}

// reducePermissions folds grant rows into a single verdict. One prohibit
// anywhere on the chain is final and cannot be overridden by an allow at a
// more specific context; otherwise any allow wins over prevent, and rows
// with inherit contribute nothing.
func reducePermissions(grants []domain.RoleCapability) domain.Permission {
	permission := domain.PermissionInherit

	for _, grant := range grants {
		switch grant.Permission {
		case domain.PermissionProhibit:
			return domain.PermissionProhibit
		case domain.PermissionAllow:
			permission = domain.PermissionAllow
		case domain.PermissionPrevent:
			if permission != domain.PermissionAllow {
				permission = domain.PermissionPrevent
			}
		}
	}

	return permission
}
