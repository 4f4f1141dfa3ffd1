package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType string, userID int64, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	subject := ""
	if userID > 0 {
		subject = strconv.FormatInt(userID, 10)
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    subject,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishRoleAssigned publishes rbac.role.assigned events.
func (p *EventPublisher) PublishRoleAssigned(ctx context.Context, event domain.RoleAssignedEvent) error {
	payload := struct {
		AssignmentID  int64          `json:"assignment_id"`
		RoleID        int64          `json:"role_id"`
		RoleShortname string         `json:"role_shortname"`
		UserID        int64          `json:"user_id"`
		ContextID     int64          `json:"context_id"`
		AssignedBy    int64          `json:"assigned_by"`
		AssignedAt    time.Time      `json:"assigned_at"`
		ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		AssignmentID:  event.AssignmentID,
		RoleID:        event.RoleID,
		RoleShortname: event.RoleShortname,
		UserID:        event.UserID,
		ContextID:     event.ContextID,
		AssignedBy:    event.AssignedBy,
		AssignedAt:    event.AssignedAt.UTC(),
		ExpiresAt:     event.ExpiresAt,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "rbac.role.assigned", event.UserID, event.AssignedAt, payload)
}

// PublishRoleUnassigned publishes rbac.role.unassigned events.
func (p *EventPublisher) PublishRoleUnassigned(ctx context.Context, event domain.RoleUnassignedEvent) error {
	payload := struct {
		RoleID        int64          `json:"role_id"`
		RoleShortname string         `json:"role_shortname,omitempty"`
		UserID        int64          `json:"user_id"`
		ContextID     int64          `json:"context_id"`
		UnassignedBy  int64          `json:"unassigned_by"`
		UnassignedAt  time.Time      `json:"unassigned_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:        event.RoleID,
		RoleShortname: event.RoleShortname,
		UserID:        event.UserID,
		ContextID:     event.ContextID,
		UnassignedBy:  event.UnassignedBy,
		UnassignedAt:  event.UnassignedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "rbac.role.unassigned", event.UserID, event.UnassignedAt, payload)
}

func capabilityPayload(event domain.CapabilityChangedEvent) any {
	return struct {
		GrantID    int64          `json:"grant_id,omitempty"`
		RoleID     int64          `json:"role_id"`
		Capability string         `json:"capability"`
		Permission string         `json:"permission"`
		ContextID  int64          `json:"context_id"`
		ChangedBy  int64          `json:"changed_by"`
		ChangedAt  time.Time      `json:"changed_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		GrantID:    event.GrantID,
		RoleID:     event.RoleID,
		Capability: event.Capability,
		Permission: event.Permission,
		ContextID:  event.ContextID,
		ChangedBy:  event.ChangedBy,
		ChangedAt:  event.ChangedAt.UTC(),
		Metadata:   event.Metadata,
	}
}

// PublishCapabilityAssigned publishes rbac.capability.assigned events.
func (p *EventPublisher) PublishCapabilityAssigned(ctx context.Context, event domain.CapabilityChangedEvent) error {
	return p.publish(ctx, event.EventID, "rbac.capability.assigned", event.ChangedBy, event.ChangedAt, capabilityPayload(event))
}

// PublishCapabilityUpdated publishes rbac.capability.updated events.
func (p *EventPublisher) PublishCapabilityUpdated(ctx context.Context, event domain.CapabilityChangedEvent) error {
	return p.publish(ctx, event.EventID, "rbac.capability.updated", event.ChangedBy, event.ChangedAt, capabilityPayload(event))
}

// PublishCapabilityRevoked publishes rbac.capability.revoked events.
func (p *EventPublisher) PublishCapabilityRevoked(ctx context.Context, event domain.CapabilityChangedEvent) error {
	return p.publish(ctx, event.EventID, "rbac.capability.revoked", event.ChangedBy, event.ChangedAt, capabilityPayload(event))
}

var _ port.EventPublisher = (*EventPublisher)(nil)
