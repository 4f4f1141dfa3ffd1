package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/repository"
)

// Capabilities managed by this service itself. The full capability set is
// plugin-extensible; these cover the admin surface.
const (
	CapRoleView   = "core/role:view"
	CapRoleManage = "core/role:manage"
	CapRoleAssign = "core/role:assign"
	CapAuditView  = "core/log:view"
	CapUserView   = "core/user:view"
	CapUserManage = "core/user:manage"
)

var managerCapabilities = []string{
	CapRoleView,
	CapRoleAssign,
	CapAuditView,
	CapUserView,
	CapUserManage,
}

var allCapabilities = []string{
	CapRoleView,
	CapRoleManage,
	CapRoleAssign,
	CapAuditView,
	CapUserView,
	CapUserManage,
}

type seedRole struct {
	shortname   string
	name        string
	description string
	archetype   string
}

var seedRoles = []seedRole{
	{"administrator", "Administrator", "Full system access", "admin"},
	{"manager", "Manager", "Can manage users and configuration", "manager"},
	{"user", "User", "Standard user", "user"},
	{"guest", "Guest", "Unauthenticated visitor", "guest"},
}

// Bootstrapper seeds the default roles and their system-context grants on
// first startup. Every step is idempotent, so re-running after a partial
// failure is safe.
type Bootstrapper struct {
	contexts *ContextService
	roles    *RoleService
	log      *zap.Logger
}

// NewBootstrapper constructs a Bootstrapper.
func NewBootstrapper(contexts *ContextService, roles *RoleService, log *zap.Logger) *Bootstrapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrapper{contexts: contexts, roles: roles, log: log}
}

// Run creates the system context, the default roles and their grants where
// absent.
func (b *Bootstrapper) Run(ctx context.Context) error {
	sys, err := b.contexts.SystemContext(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap system context: %w", err)
	}

	actor := Actor{} // system actor

	byShortname := make(map[string]*domain.Role, len(seedRoles))
	for _, seed := range seedRoles {
		role, err := b.roles.GetRoleByShortname(ctx, seed.shortname)
		if errors.Is(err, repository.ErrNotFound) {
			description := seed.description
			role, err = b.roles.CreateRole(ctx, actor, *sys, CreateRoleInput{
				Shortname:   seed.shortname,
				Name:        seed.name,
				Description: &description,
				Archetype:   seed.archetype,
			})
			if err == nil {
				b.log.Info("seeded default role", zap.String("shortname", seed.shortname))
			}
		}
		if err != nil {
			return fmt.Errorf("bootstrap role %s: %w", seed.shortname, err)
		}
		byShortname[seed.shortname] = role
	}

	grants := map[string][]string{
		"administrator": allCapabilities,
		"manager":       managerCapabilities,
		"user":          {CapUserView},
	}

	for shortname, capabilities := range grants {
		role := byShortname[shortname]
		existing, err := b.roles.CapabilitiesOf(ctx, role.ID, *sys)
		if err != nil {
			return fmt.Errorf("bootstrap capabilities of %s: %w", shortname, err)
		}

		for _, capability := range capabilities {
			if _, ok := existing[capability]; ok {
				continue
			}
			if _, err := b.roles.GrantCapability(ctx, actor, role.ID, capability, domain.PermissionAllow, *sys); err != nil {
				return fmt.Errorf("bootstrap grant %s to %s: %w", capability, shortname, err)
			}
		}
	}

	return nil
}
