package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, userID int64, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.Int64("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishRoleAssigned logs rbac.role.assigned events.
func (p *StubPublisher) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	payload := map[string]any{
		"assignment_id":  event.AssignmentID,
		"role_id":        event.RoleID,
		"role_shortname": event.RoleShortname,
		"user_id":        event.UserID,
		"context_id":     event.ContextID,
		"assigned_by":    event.AssignedBy,
		"assigned_at":    event.AssignedAt,
		"expires_at":     event.ExpiresAt,
	}
	p.logEvent("rbac.role.assigned", event.UserID, event.AssignedAt, payload)
	return nil
}

// PublishRoleUnassigned logs rbac.role.unassigned events.
func (p *StubPublisher) PublishRoleUnassigned(_ context.Context, event domain.RoleUnassignedEvent) error {
	payload := map[string]any{
		"role_id":       event.RoleID,
		"user_id":       event.UserID,
		"context_id":    event.ContextID,
		"unassigned_by": event.UnassignedBy,
		"unassigned_at": event.UnassignedAt,
	}
	p.logEvent("rbac.role.unassigned", event.UserID, event.UnassignedAt, payload)
	return nil
}

func (p *StubPublisher) logCapabilityEvent(eventType string, event domain.CapabilityChangedEvent) {
	payload := map[string]any{
		"grant_id":   event.GrantID,
		"role_id":    event.RoleID,
		"capability": event.Capability,
		"permission": event.Permission,
		"context_id": event.ContextID,
		"changed_by": event.ChangedBy,
		"changed_at": event.ChangedAt,
	}
	p.logEvent(eventType, event.ChangedBy, event.ChangedAt, payload)
}

// PublishCapabilityAssigned logs rbac.capability.assigned events.
func (p *StubPublisher) PublishCapabilityAssigned(_ context.Context, event domain.CapabilityChangedEvent) error {
	p.logCapabilityEvent("rbac.capability.assigned", event)
	return nil
}

// PublishCapabilityUpdated logs rbac.capability.updated events.
func (p *StubPublisher) PublishCapabilityUpdated(_ context.Context, event domain.CapabilityChangedEvent) error {
	p.logCapabilityEvent("rbac.capability.updated", event)
	return nil
}

// PublishCapabilityRevoked logs rbac.capability.revoked events.
func (p *StubPublisher) PublishCapabilityRevoked(_ context.Context, event domain.CapabilityChangedEvent) error {
	p.logCapabilityEvent("rbac.capability.revoked", event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
