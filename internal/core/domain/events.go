package domain

import "time"

// RoleAssignedEvent represents the payload for rbac.role.assigned messages.
type RoleAssignedEvent struct {
	EventID       string
	AssignmentID  int64
	RoleID        int64
	RoleShortname string
	UserID        int64
	ContextID     int64
	AssignedBy    int64
	AssignedAt    time.Time
	ExpiresAt     *time.Time
	Metadata      map[string]any
}

// RoleUnassignedEvent represents the payload for rbac.role.unassigned messages.
type RoleUnassignedEvent struct {
	EventID       string
	RoleID        int64
	RoleShortname string
	UserID        int64
	ContextID     int64
	UnassignedBy  int64
	UnassignedAt  time.Time
	Metadata      map[string]any
}

// CapabilityChangedEvent represents the payload for rbac.capability.assigned,
// rbac.capability.updated and rbac.capability.revoked messages.
type CapabilityChangedEvent struct {
	EventID    string
	GrantID    int64
	RoleID     int64
	Capability string
	Permission string
	ContextID  int64
	ChangedBy  int64
	ChangedAt  time.Time
	Metadata   map[string]any
}
