package domain

import "time"

// CRUD classification letters recorded on every audit row.
const (
	CRUDCreate = "c"
	CRUDRead   = "r"
	CRUDUpdate = "u"
	CRUDDelete = "d"
)

// Audit event names emitted by the RBAC mutation paths.
const (
	EventRoleCreated        = "role_created"
	EventRoleUpdated        = "role_updated"
	EventRoleDeleted        = "role_deleted"
	EventRoleAssigned       = "role_assigned"
	EventRoleUnassigned     = "role_unassigned"
	EventCapabilityAssigned = "capability_assigned"
	EventCapabilityUpdated  = "capability_updated"
	EventCapabilityRevoked  = "capability_revoked"
)

// AuditEvent is one append-only audit trail row. Rows are written after a
// mutation commits and are never updated or deleted.
type AuditEvent struct {
	ID            int64
	Name          string
	Component     string
	Action        string
	Target        string
	ObjectTable   string
	ObjectID      int64
	CRUD          string
	ContextID     int64
	ContextLevel  ContextLevel
	InstanceID    int64
	UserID        int64
	RelatedUserID *int64
	Other         map[string]any
	TimeCreated   time.Time
	Origin        string
	IPAddress     *string
}

// AuditFilter narrows audit trail queries.
type AuditFilter struct {
	UserID        *int64
	RelatedUserID *int64
	ContextID     *int64
	Name          string
	Limit         int
	Offset        int
}
