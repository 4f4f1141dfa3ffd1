package usecase

import "errors"

var (
	// ErrInvalidShortname indicates the role shortname fails the required
	// pattern (lowercase identifier).
	ErrInvalidShortname = errors.New("invalid role shortname")
	// ErrRoleExists indicates a role with the provided shortname already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrProtectedRole indicates an attempt to delete a system role.
	ErrProtectedRole = errors.New("system role cannot be deleted")
	// ErrInvalidPermission indicates the permission value is not one of
	// prohibit/prevent/inherit/allow.
	ErrInvalidPermission = errors.New("invalid permission value")
	// ErrInvalidCapability indicates an empty capability identifier.
	ErrInvalidCapability = errors.New("capability is required")
	// ErrInvalidEvent indicates an audit event missing its name or component.
	ErrInvalidEvent = errors.New("audit event requires name and component")
)
