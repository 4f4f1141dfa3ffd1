package port

import (
	"context"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// EventPublisher publishes RBAC domain events to the message bus.
type EventPublisher interface {
	PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error
	PublishRoleUnassigned(ctx context.Context, event domain.RoleUnassignedEvent) error
	PublishCapabilityAssigned(ctx context.Context, event domain.CapabilityChangedEvent) error
	PublishCapabilityUpdated(ctx context.Context, event domain.CapabilityChangedEvent) error
	PublishCapabilityRevoked(ctx context.Context, event domain.CapabilityChangedEvent) error
}
