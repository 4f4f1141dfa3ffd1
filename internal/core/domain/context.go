package domain

import (
	"strconv"
	"strings"
)

// ContextLevel identifies where in the hierarchy a context sits. The numeric
// gaps leave room for plugin-defined levels between the built-in ones.
type ContextLevel int

const (
	LevelSystem ContextLevel = 10
	LevelUser   ContextLevel = 30
	LevelCourse ContextLevel = 50
)

// String returns a stable label for logging and audit rows.
func (l ContextLevel) String() string {
	switch l {
	case LevelSystem:
		return "system"
	case LevelUser:
		return "user"
	case LevelCourse:
		return "course"
	default:
		return "level" + strconv.Itoa(int(l))
	}
}

// Context is a scope node in the permission hierarchy. Path is the
// materialized ancestor chain ("/1/5"), root-to-self, and always ends with
// the context's own id. Depth equals the number of ids on the path.
type Context struct {
	ID         int64
	Level      ContextLevel
	InstanceID int64
	Path       string
	Depth      int
}

// PathIDs splits the materialized path into context ids, root first,
// including the context itself.
func (c Context) PathIDs() []int64 {
	if c.Path == "" {
		return []int64{c.ID}
	}

	parts := strings.Split(strings.Trim(c.Path, "/"), "/")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return []int64{c.ID}
	}
	return ids
}

// IsAncestorOf reports whether c sits strictly above other in the hierarchy.
func (c Context) IsAncestorOf(other Context) bool {
	if c.Depth >= other.Depth {
		return false
	}
	return strings.HasPrefix(other.Path, c.Path+"/")
}

// IsSystem reports whether this is the singleton root context.
func (c Context) IsSystem() bool {
	return c.Level == LevelSystem && c.InstanceID == 0
}
