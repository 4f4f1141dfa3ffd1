package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// AssignInput captures the payload for assigning a role to a user.
type AssignInput struct {
	RoleID    int64
	UserID    int64
	ExpiresAt *time.Time
}

// AssignmentService manages (role, user, context) bindings.
type AssignmentService struct {
	assignments port.AssignmentRepository
	roles       port.RoleRepository
	cache       port.VerdictCache
	audit       *AuditService
	publisher   port.EventPublisher
	log         *zap.Logger
	now         func() time.Time
}

// NewAssignmentService constructs an AssignmentService.
func NewAssignmentService(assignments port.AssignmentRepository, roles port.RoleRepository, cache port.VerdictCache, audit *AuditService, publisher port.EventPublisher, log *zap.Logger) *AssignmentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AssignmentService{
		assignments: assignments,
		roles:       roles,
		cache:       cache,
		audit:       audit,
		publisher:   publisher,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Assign binds a role to a user in a context. Idempotent: when the tuple
// already exists the existing assignment id is returned unchanged and no
// event is emitted.
func (s *AssignmentService) Assign(ctx context.Context, actor Actor, node domain.Context, input AssignInput) (int64, error) {
	role, err := s.roles.GetByID(ctx, input.RoleID)
	if err != nil {
		return 0, fmt.Errorf("get role: %w", err)
	}

	existing, err := s.assignments.Get(ctx, input.RoleID, input.UserID, node.ID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, fmt.Errorf("lookup assignment: %w", err)
	}

	assignment := domain.RoleAssignment{
		RoleID:       input.RoleID,
		UserID:       input.UserID,
		ContextID:    node.ID,
		ExpiresAt:    input.ExpiresAt,
		TimeModified: s.now(),
	}
	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return 0, fmt.Errorf("create assignment: %w", err)
	}

	s.invalidateUser(ctx, input.UserID)

	relatedID := input.UserID
	s.audit.TryRecord(ctx, domain.AuditEvent{
		Name:          domain.EventRoleAssigned,
		Component:     AuditComponent,
		Action:        "assigned",
		Target:        "role",
		ObjectTable:   "role_assignments",
		ObjectID:      assignment.ID,
		CRUD:          domain.CRUDCreate,
		ContextID:     node.ID,
		ContextLevel:  node.Level,
		InstanceID:    node.InstanceID,
		UserID:        actor.ID,
		RelatedUserID: &relatedID,
		Other:         map[string]any{"role": role.Shortname},
		IPAddress:     actorIP(actor),
	})

	if s.publisher != nil {
		event := domain.RoleAssignedEvent{
			AssignmentID:  assignment.ID,
			RoleID:        role.ID,
			RoleShortname: role.Shortname,
			UserID:        input.UserID,
			ContextID:     node.ID,
			AssignedBy:    actor.ID,
			AssignedAt:    assignment.TimeModified,
			ExpiresAt:     input.ExpiresAt,
		}
		if err := s.publisher.PublishRoleAssigned(ctx, event); err != nil {
			s.log.Warn("role assigned event publish failed",
				zap.Int64("role_id", role.ID),
				zap.Int64("user_id", input.UserID),
				zap.Error(err),
			)
		}
	}

	return assignment.ID, nil
}

// Unassign removes the (role, user, context) tuple. Idempotent: false
// without error when no assignment existed.
func (s *AssignmentService) Unassign(ctx context.Context, actor Actor, node domain.Context, roleID, userID int64) (bool, error) {
	deleted, err := s.assignments.Delete(ctx, roleID, userID, node.ID)
	if err != nil {
		return false, fmt.Errorf("delete assignment: %w", err)
	}
	if !deleted {
		return false, nil
	}

	s.invalidateUser(ctx, userID)

	relatedID := userID
	s.audit.TryRecord(ctx, domain.AuditEvent{
		Name:          domain.EventRoleUnassigned,
		Component:     AuditComponent,
		Action:        "unassigned",
		Target:        "role",
		ObjectTable:   "role_assignments",
		CRUD:          domain.CRUDDelete,
		ContextID:     node.ID,
		ContextLevel:  node.Level,
		InstanceID:    node.InstanceID,
		UserID:        actor.ID,
		RelatedUserID: &relatedID,
		Other:         map[string]any{"role_id": roleID},
		IPAddress:     actorIP(actor),
	})

	if s.publisher != nil {
		event := domain.RoleUnassignedEvent{
			RoleID:       roleID,
			UserID:       userID,
			ContextID:    node.ID,
			UnassignedBy: actor.ID,
			UnassignedAt: s.now(),
		}
		if err := s.publisher.PublishRoleUnassigned(ctx, event); err != nil {
			s.log.Warn("role unassigned event publish failed",
				zap.Int64("role_id", roleID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return true, nil
}

// RolesOfUser returns roles assigned directly in the exact context, ordered
// by role sort order. Expired assignments are excluded, so the listing
// agrees with the resolver. Resolution across ancestors is the access
// resolver's job, not this one's.
func (s *AssignmentService) RolesOfUser(ctx context.Context, userID int64, node domain.Context) ([]domain.Role, error) {
	return s.assignments.RolesOfUser(ctx, userID, node.ID, s.now())
}

// UserHasRole reports whether the user currently holds the role (by
// shortname) directly in the given context. Expired assignments do not
// count.
func (s *AssignmentService) UserHasRole(ctx context.Context, userID int64, shortname string, node domain.Context) (bool, error) {
	roles, err := s.assignments.RolesOfUser(ctx, userID, node.ID, s.now())
	if err != nil {
		return false, fmt.Errorf("roles of user: %w", err)
	}

	for _, role := range roles {
		if role.Shortname == shortname {
			return true, nil
		}
	}
	return false, nil
}

func (s *AssignmentService) invalidateUser(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil {
		s.log.Error("user verdict cache invalidation failed",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
}
