package domain

import "time"

// Permission is the value a role holds for a capability in a context.
// The numeric gaps mirror the override precedence: a single prohibit
// outweighs any number of allows.
type Permission int

const (
	PermissionProhibit Permission = -1000
	PermissionPrevent  Permission = -1
	PermissionInherit  Permission = 0
	PermissionAllow    Permission = 1
)

// String returns a stable label for logging and audit rows.
func (p Permission) String() string {
	switch p {
	case PermissionProhibit:
		return "prohibit"
	case PermissionPrevent:
		return "prevent"
	case PermissionAllow:
		return "allow"
	default:
		return "inherit"
	}
}

// Valid reports whether p is one of the four defined permission values.
func (p Permission) Valid() bool {
	switch p {
	case PermissionProhibit, PermissionPrevent, PermissionInherit, PermissionAllow:
		return true
	}
	return false
}

// Role defines a named set of capability grants. Shortname is the unique
// lowercase identifier; SortOrder controls listing and evaluation order.
type Role struct {
	ID          int64
	Shortname   string
	Name        string
	Description *string
	Archetype   string
	SortOrder   int
}

// RoleCapability is a single grant row: the permission a role holds for a
// capability at a context. At most one row exists per
// (role, capability, context).
type RoleCapability struct {
	ID           int64
	RoleID       int64
	Capability   string
	Permission   Permission
	ContextID    int64
	TimeModified time.Time
}

// RoleAssignment binds a role to a user within a context. ExpiresAt, when
// set, removes the assignment from resolution once passed; the row itself
// stays until unassigned.
type RoleAssignment struct {
	ID           int64
	RoleID       int64
	UserID       int64
	ContextID    int64
	ExpiresAt    *time.Time
	TimeModified time.Time
}

// User carries the subset of account fields the RBAC surface needs for
// listing role holders.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}
