package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

var shortnamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Shortnames of system roles that can never be deleted.
var protectedShortnames = map[string]struct{}{
	"administrator": {},
	"manager":       {},
	"user":          {},
	"guest":         {},
}

// CreateRoleInput captures the payload for creating a role.
type CreateRoleInput struct {
	Shortname   string
	Name        string
	Description *string
	Archetype   string
}

// UpdateRoleInput captures the payload for updating a role. Nil fields keep
// their current value.
type UpdateRoleInput struct {
	ID          int64
	Name        *string
	Description *string
}

// RoleService manages role definitions and capability grants.
type RoleService struct {
	roles     port.RoleRepository
	cache     port.VerdictCache
	audit     *AuditService
	publisher port.EventPublisher
	log       *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository, cache port.VerdictCache, audit *AuditService, publisher port.EventPublisher, log *zap.Logger) *RoleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RoleService{roles: roles, cache: cache, audit: audit, publisher: publisher, log: log}
}

// ListRoles returns all roles ordered by sort order.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	return s.roles.List(ctx)
}

// GetRole returns a role by id.
func (s *RoleService) GetRole(ctx context.Context, id int64) (*domain.Role, error) {
	return s.roles.GetByID(ctx, id)
}

// GetRoleByShortname returns a role by its unique shortname.
func (s *RoleService) GetRoleByShortname(ctx context.Context, shortname string) (*domain.Role, error) {
	return s.roles.GetByShortname(ctx, shortname)
}

// CreateRole provisions a new role at the end of the sort order.
func (s *RoleService) CreateRole(ctx context.Context, actor Actor, sys domain.Context, input CreateRoleInput) (*domain.Role, error) {
	shortname := strings.TrimSpace(input.Shortname)
	if !shortnamePattern.MatchString(shortname) {
		return nil, ErrInvalidShortname
	}

	if existing, err := s.roles.GetByShortname(ctx, shortname); err == nil && existing != nil {
		return nil, ErrRoleExists
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup role by shortname: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = shortname
	}

	role := domain.Role{
		Shortname: shortname,
		Name:      name,
		Archetype: strings.TrimSpace(input.Archetype),
	}
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		if trimmed != "" {
			role.Description = &trimmed
		}
	}

	if err := s.roles.Create(ctx, &role); err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}

	s.audit.TryRecord(ctx, s.roleEvent(domain.EventRoleCreated, "created", domain.CRUDCreate, actor, role, sys, nil))

	return &role, nil
}

// UpdateRole modifies name and description of an existing role.
func (s *RoleService) UpdateRole(ctx context.Context, actor Actor, sys domain.Context, input UpdateRoleInput) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, input.ID)
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed != "" {
			role.Name = trimmed
		}
	}
	if input.Description != nil {
		trimmed := strings.TrimSpace(*input.Description)
		if trimmed == "" {
			role.Description = nil
		} else {
			role.Description = &trimmed
		}
	}

	if err := s.roles.Update(ctx, *role); err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}

	s.audit.TryRecord(ctx, s.roleEvent(domain.EventRoleUpdated, "updated", domain.CRUDUpdate, actor, *role, sys, nil))

	return role, nil
}

// DeleteRole removes a role, its assignments and its capability grants in
// one transaction. System roles are refused.
func (s *RoleService) DeleteRole(ctx context.Context, actor Actor, sys domain.Context, roleID int64) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return fmt.Errorf("get role: %w", err)
	}

	if _, protected := protectedShortnames[role.Shortname]; protected {
		return ErrProtectedRole
	}

	if err := s.roles.DeleteCascade(ctx, roleID); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}

	// The cascade removed assignments for an unknown set of users, so the
	// whole verdict cache goes.
	s.invalidateAll(ctx)

	s.audit.TryRecord(ctx, s.roleEvent(domain.EventRoleDeleted, "deleted", domain.CRUDDelete, actor, *role, sys, nil))

	return nil
}

// MoveUp swaps a role with its predecessor in the sort order. Returns false
// when the role is already first.
func (s *RoleService) MoveUp(ctx context.Context, roleID int64) (bool, error) {
	return s.move(ctx, roleID, -1)
}

// MoveDown swaps a role with its successor in the sort order. Returns false
// when the role is already last.
func (s *RoleService) MoveDown(ctx context.Context, roleID int64) (bool, error) {
	return s.move(ctx, roleID, +1)
}

func (s *RoleService) move(ctx context.Context, roleID int64, direction int) (bool, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return false, fmt.Errorf("list roles: %w", err)
	}

	index := -1
	for i, role := range roles {
		if role.ID == roleID {
			index = i
			break
		}
	}
	if index < 0 {
		return false, repository.ErrNotFound
	}

	neighbor := index + direction
	if neighbor < 0 || neighbor >= len(roles) {
		return false, nil
	}

	if err := s.roles.SwapSortOrder(ctx, roles[index], roles[neighbor]); err != nil {
		return false, fmt.Errorf("swap sort order: %w", err)
	}

	return true, nil
}

// GrantCapability sets the permission a role holds for a capability in a
// context, inserting or updating the grant row. Any grant change invalidates
// the whole verdict cache: the affected user set is every holder of the
// role, which is not cheaply enumerable.
func (s *RoleService) GrantCapability(ctx context.Context, actor Actor, roleID int64, capability string, permission domain.Permission, node domain.Context) (int64, error) {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return 0, ErrInvalidCapability
	}
	if !permission.Valid() {
		return 0, ErrInvalidPermission
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return 0, fmt.Errorf("get role: %w", err)
	}

	result, err := s.roles.UpsertCapability(ctx, roleID, capability, permission, node.ID)
	if err != nil {
		return 0, fmt.Errorf("upsert capability grant: %w", err)
	}

	s.invalidateAll(ctx)

	other := map[string]any{
		"capability": capability,
		"permission": permission.String(),
		"role":       role.Shortname,
	}

	switch {
	case result.Created:
		s.audit.TryRecord(ctx, s.grantEvent(domain.EventCapabilityAssigned, "assigned", domain.CRUDCreate, actor, result.GrantID, node, other))
		s.publishGrant(ctx, domain.EventCapabilityAssigned, result.GrantID, roleID, capability, permission, node, actor)
	case result.Previous != permission:
		s.audit.TryRecord(ctx, s.grantEvent(domain.EventCapabilityUpdated, "updated", domain.CRUDUpdate, actor, result.GrantID, node, other))
		s.publishGrant(ctx, domain.EventCapabilityUpdated, result.GrantID, roleID, capability, permission, node, actor)
	}

	return result.GrantID, nil
}

// RevokeCapability deletes the grant row for (role, capability, context).
// Returns false when no grant existed.
func (s *RoleService) RevokeCapability(ctx context.Context, actor Actor, roleID int64, capability string, node domain.Context) (bool, error) {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return false, ErrInvalidCapability
	}

	deleted, err := s.roles.DeleteCapability(ctx, roleID, capability, node.ID)
	if err != nil {
		return false, fmt.Errorf("delete capability grant: %w", err)
	}
	if !deleted {
		return false, nil
	}

	s.invalidateAll(ctx)

	other := map[string]any{"capability": capability}
	s.audit.TryRecord(ctx, s.grantEvent(domain.EventCapabilityRevoked, "revoked", domain.CRUDDelete, actor, 0, node, other))
	s.publishGrant(ctx, domain.EventCapabilityRevoked, 0, roleID, capability, domain.PermissionInherit, node, actor)

	return true, nil
}

// CapabilitiesOf returns capability -> permission for a role at a context.
func (s *RoleService) CapabilitiesOf(ctx context.Context, roleID int64, node domain.Context) (map[string]domain.Permission, error) {
	return s.roles.Capabilities(ctx, roleID, node.ID)
}

// UsersWithRole lists users holding the role in the context, ordered by last
// name then first name.
func (s *RoleService) UsersWithRole(ctx context.Context, roleID int64, node domain.Context) ([]domain.User, error) {
	return s.roles.UsersWithRole(ctx, roleID, node.ID)
}

func (s *RoleService) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.log.Error("global verdict cache invalidation failed", zap.Error(err))
	}
}

func (s *RoleService) roleEvent(name, action, crud string, actor Actor, role domain.Role, node domain.Context, other map[string]any) domain.AuditEvent {
	if other == nil {
		other = map[string]any{"shortname": role.Shortname}
	}
	return domain.AuditEvent{
		Name:         name,
		Component:    AuditComponent,
		Action:       action,
		Target:       "role",
		ObjectTable:  "roles",
		ObjectID:     role.ID,
		CRUD:         crud,
		ContextID:    node.ID,
		ContextLevel: node.Level,
		InstanceID:   node.InstanceID,
		UserID:       actor.ID,
		Other:        other,
		IPAddress:    actorIP(actor),
	}
}

func (s *RoleService) grantEvent(name, action, crud string, actor Actor, grantID int64, node domain.Context, other map[string]any) domain.AuditEvent {
	return domain.AuditEvent{
		Name:         name,
		Component:    AuditComponent,
		Action:       action,
		Target:       "capability",
		ObjectTable:  "role_capabilities",
		ObjectID:     grantID,
		CRUD:         crud,
		ContextID:    node.ID,
		ContextLevel: node.Level,
		InstanceID:   node.InstanceID,
		UserID:       actor.ID,
		Other:        other,
		IPAddress:    actorIP(actor),
	}
}

func (s *RoleService) publishGrant(ctx context.Context, name string, grantID, roleID int64, capability string, permission domain.Permission, node domain.Context, actor Actor) {
	if s.publisher == nil {
		return
	}

	event := domain.CapabilityChangedEvent{
		GrantID:    grantID,
		RoleID:     roleID,
		Capability: capability,
		Permission: permission.String(),
		ContextID:  node.ID,
		ChangedBy:  actor.ID,
	}

	var err error
	switch name {
	case domain.EventCapabilityAssigned:
		err = s.publisher.PublishCapabilityAssigned(ctx, event)
	case domain.EventCapabilityUpdated:
		err = s.publisher.PublishCapabilityUpdated(ctx, event)
	case domain.EventCapabilityRevoked:
		err = s.publisher.PublishCapabilityRevoked(ctx, event)
	}
	if err != nil {
		s.log.Warn("capability event publish failed",
			zap.Int64("role_id", roleID),
			zap.String("capability", capability),
			zap.Error(err),
		)
	}
}

func actorIP(actor Actor) *string {
	ip := strings.TrimSpace(actor.IP)
	if ip == "" {
		return nil
	}
	return &ip
}
