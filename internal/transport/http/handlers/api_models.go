package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the liveness endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// RolePayload describes a role returned by the API.
type RolePayload struct {
	ID          int64   `json:"id"`
	Shortname   string  `json:"shortname"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Archetype   string  `json:"archetype,omitempty"`
	SortOrder   int     `json:"sort_order"`
}

func toRolePayload(role domain.Role) RolePayload {
	return RolePayload{
		ID:          role.ID,
		Shortname:   role.Shortname,
		Name:        role.Name,
		Description: role.Description,
		Archetype:   role.Archetype,
		SortOrder:   role.SortOrder,
	}
}

// RoleCreateRequest defines the payload for creating a role.
type RoleCreateRequest struct {
	Shortname   string  `json:"shortname" binding:"required"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Archetype   string  `json:"archetype"`
}

// RoleUpdateRequest defines the payload for updating a role. Omitted fields
// keep their current value.
type RoleUpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// RoleMoveResponse reports whether a sort order move changed anything.
type RoleMoveResponse struct {
	Moved bool `json:"moved"`
}

// CapabilityGrantRequest sets the permission a role holds for a capability.
// ContextID defaults to the system context when omitted.
type CapabilityGrantRequest struct {
	Capability string `json:"capability" binding:"required"`
	Permission int    `json:"permission"`
	ContextID  int64  `json:"context_id"`
}

// CapabilityGrantResponse is returned after a grant is written.
type CapabilityGrantResponse struct {
	GrantID    int64  `json:"grant_id"`
	Capability string `json:"capability"`
	Permission string `json:"permission"`
	ContextID  int64  `json:"context_id"`
}

// CapabilityMapResponse lists the effective grants of a role at a context.
type CapabilityMapResponse struct {
	RoleID       int64             `json:"role_id"`
	ContextID    int64             `json:"context_id"`
	Capabilities map[string]string `json:"capabilities"`
}

// RoleUserPayload is one holder of a role within a context.
type RoleUserPayload struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// AssignmentCreateRequest binds a role to a user within a context.
type AssignmentCreateRequest struct {
	RoleID    int64      `json:"role_id" binding:"required"`
	UserID    int64      `json:"user_id" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// AssignmentResponse identifies the assignment row after an assign call.
type AssignmentResponse struct {
	AssignmentID int64 `json:"assignment_id"`
	RoleID       int64 `json:"role_id"`
	UserID       int64 `json:"user_id"`
	ContextID    int64 `json:"context_id"`
}

// AssignmentDeleteRequest removes a role from a user within a context.
type AssignmentDeleteRequest struct {
	RoleID int64 `json:"role_id" binding:"required"`
	UserID int64 `json:"user_id" binding:"required"`
}

// UserHasRolePayload reports direct role membership within a context.
type UserHasRolePayload struct {
	UserID    int64  `json:"user_id"`
	ContextID int64  `json:"context_id"`
	Shortname string `json:"shortname"`
	HasRole   bool   `json:"has_role"`
}

// ContextPayload describes a node in the context hierarchy.
type ContextPayload struct {
	ID         int64  `json:"id"`
	Level      int    `json:"level"`
	LevelName  string `json:"level_name"`
	InstanceID int64  `json:"instance_id"`
	Path       string `json:"path"`
	Depth      int    `json:"depth"`
}

func toContextPayload(node domain.Context) ContextPayload {
	return ContextPayload{
		ID:         node.ID,
		Level:      int(node.Level),
		LevelName:  node.Level.String(),
		InstanceID: node.InstanceID,
		Path:       node.Path,
		Depth:      node.Depth,
	}
}

// ContextResolveRequest locates or creates the context for an instance.
type ContextResolveRequest struct {
	Level      int   `json:"level" binding:"required"`
	InstanceID int64 `json:"instance_id"`
}

// AccessCheckResponse reports the verdict of a capability check.
type AccessCheckResponse struct {
	UserID     int64  `json:"user_id"`
	Capability string `json:"capability"`
	ContextID  int64  `json:"context_id"`
	Allowed    bool   `json:"allowed"`
}

// AuditEventPayload is one audit trail row returned by the API.
type AuditEventPayload struct {
	ID            int64          `json:"id"`
	Name          string         `json:"name"`
	Component     string         `json:"component"`
	Action        string         `json:"action"`
	Target        string         `json:"target"`
	ObjectTable   string         `json:"object_table,omitempty"`
	ObjectID      int64          `json:"object_id,omitempty"`
	CRUD          string         `json:"crud"`
	ContextID     int64          `json:"context_id"`
	UserID        int64          `json:"user_id"`
	RelatedUserID *int64         `json:"related_user_id,omitempty"`
	Other         map[string]any `json:"other,omitempty"`
	TimeCreated   time.Time      `json:"time_created"`
	Origin        string         `json:"origin"`
	IPAddress     *string        `json:"ip_address,omitempty"`
}

func toAuditEventPayload(event domain.AuditEvent) AuditEventPayload {
	return AuditEventPayload{
		ID:            event.ID,
		Name:          event.Name,
		Component:     event.Component,
		Action:        event.Action,
		Target:        event.Target,
		ObjectTable:   event.ObjectTable,
		ObjectID:      event.ObjectID,
		CRUD:          event.CRUD,
		ContextID:     event.ContextID,
		UserID:        event.UserID,
		RelatedUserID: event.RelatedUserID,
		Other:         event.Other,
		TimeCreated:   event.TimeCreated,
		Origin:        event.Origin,
		IPAddress:     event.IPAddress,
	}
}
