package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Contexts    *ContextRepository
	Roles       *RoleRepository
	Assignments *AssignmentRepository
	Audit       *AuditRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Contexts:    NewContextRepository(pool),
		Roles:       NewRoleRepository(pool),
		Assignments: NewAssignmentRepository(pool),
		Audit:       NewAuditRepository(pool),
	}
}
