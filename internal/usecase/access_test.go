package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexosupport/access-service/internal/core/domain"
)

// Fixture tree: system (1) -> user ctx (5). Grants and assignments are laid
// out per test.

func systemCtx() domain.Context {
	return domain.Context{ID: 1, Level: domain.LevelSystem, InstanceID: 0, Path: "/1", Depth: 1}
}

func userCtx() domain.Context {
	return domain.Context{ID: 5, Level: domain.LevelUser, InstanceID: 42, Path: "/1/5", Depth: 2}
}

func grant(roleID int64, capability string, permission domain.Permission, contextID int64) domain.RoleCapability {
	return domain.RoleCapability{RoleID: roleID, Capability: capability, Permission: permission, ContextID: contextID}
}

func assign(repo *assignmentRepoMock, roleID, userID, contextID int64) {
	if repo.assignments == nil {
		repo.assignments = make(map[assignKey]domain.RoleAssignment)
	}
	repo.nextID++
	repo.assignments[assignKey{roleID, userID, contextID}] = domain.RoleAssignment{
		ID:        repo.nextID,
		RoleID:    roleID,
		UserID:    userID,
		ContextID: contextID,
	}
}

func putGrant(repo *roleRepoMock, g domain.RoleCapability) {
	if repo.grants == nil {
		repo.grants = make(map[grantKey]domain.RoleCapability)
	}
	repo.nextGrant++
	g.ID = repo.nextGrant
	repo.grants[grantKey{roleID: g.RoleID, capability: g.Capability, contextID: g.ContextID}] = g
}

func TestAccessService_HasCapability_AllowInherited(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1) // role assigned at system
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))

	service := NewAccessService(assignments, roles, nil, nil)

	// Grant at the root reaches the leaf context through the path chain.
	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected allow inherited from system context")
	}
}

func TestAccessService_HasCapability_DefaultDeny(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:delete", 100, userCtx()) {
		t.Fatal("expected deny when no grant exists")
	}
}

func TestAccessService_HasCapability_NoRoles(t *testing.T) {
	service := NewAccessService(&assignmentRepoMock{}, &roleRepoMock{}, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected deny for user with no roles")
	}
}

func TestAccessService_HasCapability_GuestDenied(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	// Even a (bogus) assignment for user 0 must not grant anything.
	assign(assignments, 1, 0, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 0, userCtx()) {
		t.Fatal("expected guest to be denied")
	}
	if service.HasCapability(context.Background(), "core/ticket:view", -1, userCtx()) {
		t.Fatal("expected negative user id to be denied")
	}
}

func TestAccessService_HasCapability_ProhibitBeatsAllow(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	assign(assignments, 2, 100, 5)
	// Prohibit at the root; allow at the more specific context. Prohibit
	// must still win.
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionProhibit, 1))
	putGrant(roles, grant(2, "core/ticket:view", domain.PermissionAllow, 5))

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected prohibit to override allow")
	}
}

func TestAccessService_HasCapability_AllowBeatsPrevent(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	assign(assignments, 2, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionPrevent, 1))
	putGrant(roles, grant(2, "core/ticket:view", domain.PermissionAllow, 1))

	service := NewAccessService(assignments, roles, nil, nil)

	// Union across roles: one role's allow outweighs another's prevent.
	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected allow to win over prevent across roles")
	}
}

func TestAccessService_HasCapability_PreventDenies(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionPrevent, 1))

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected prevent to deny")
	}
}

func TestAccessService_HasCapability_ExpiredAssignmentIgnored(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{assignments: make(map[assignKey]domain.RoleAssignment)}
	expired := time.Now().UTC().Add(-time.Hour)
	assignments.assignments[assignKey{1, 100, 1}] = domain.RoleAssignment{
		ID: 1, RoleID: 1, UserID: 100, ContextID: 1, ExpiresAt: &expired,
	}
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected expired assignment to be ignored")
	}
}

func TestAccessService_HasCapability_FailClosedOnError(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{rolesErr: errors.New("connection reset")}

	service := NewAccessService(assignments, roles, nil, nil)

	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected deny on repository error")
	}
}

func TestAccessService_HasCapability_CacheHitSkipsResolution(t *testing.T) {
	// No assignments and no grants: resolution would deny, so a true
	// verdict can only come from the cache.
	assignments := &assignmentRepoMock{}
	cache := &verdictCacheMock{}
	cache.seed(100, "core/ticket:view", 5, true)

	service := NewAccessService(assignments, &roleRepoMock{}, cache, nil)

	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected cached verdict to be returned")
	}
	if cache.sets != 0 {
		t.Errorf("expected no cache write on hit, got %d", cache.sets)
	}
}

func TestAccessService_HasCapability_CacheMissStoresVerdict(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))
	cache := &verdictCacheMock{}

	service := NewAccessService(assignments, roles, cache, nil)

	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected allow")
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
	verdict, ok := cache.lookup(100, "core/ticket:view", 5)
	if !ok || !verdict {
		t.Error("expected true verdict cached for the leaf context")
	}
}

func TestAccessService_HasCapability_InvalidationDuringResolutionNotCached(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))
	cache := &verdictCacheMock{}

	service := NewAccessService(assignments, roles, cache, nil)

	// While the first check is resolving, the grant flips to PREVENT and
	// the cache is invalidated. The in-flight allow was computed from the
	// old grant rows; it must not land under the new generation.
	roles.afterGrants = func() {
		roles.afterGrants = nil
		putGrant(roles, grant(1, "core/ticket:view", domain.PermissionPrevent, 1))
		if err := cache.InvalidateAll(context.Background()); err != nil {
			t.Fatalf("InvalidateAll failed: %v", err)
		}
	}

	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected first check to allow from the pre-change grant")
	}
	if _, ok := cache.lookup(100, "core/ticket:view", 5); ok {
		t.Fatal("expected the in-flight verdict write to be orphaned by invalidation")
	}
	if service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("stale allow served after grant changed to prevent and cache was invalidated")
	}
}

func TestAccessService_HasCapability_UserInvalidationOrphansInFlightWrite(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))
	cache := &verdictCacheMock{}

	service := NewAccessService(assignments, roles, cache, nil)

	roles.afterGrants = func() {
		roles.afterGrants = nil
		if err := cache.InvalidateUser(context.Background(), 100); err != nil {
			t.Fatalf("InvalidateUser failed: %v", err)
		}
	}

	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected allow")
	}
	if _, ok := cache.lookup(100, "core/ticket:view", 5); ok {
		t.Fatal("expected verdict written under the pre-bump user generation to be unreachable")
	}
}

func TestAccessService_HasCapability_CacheErrorFallsThrough(t *testing.T) {
	roles := &roleRepoMock{}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)
	putGrant(roles, grant(1, "core/ticket:view", domain.PermissionAllow, 1))
	cache := &verdictCacheMock{getErr: errors.New("redis down")}

	service := NewAccessService(assignments, roles, cache, nil)

	// A broken cache degrades to direct resolution, it never denies.
	if !service.HasCapability(context.Background(), "core/ticket:view", 100, userCtx()) {
		t.Fatal("expected resolution to proceed past cache read error")
	}
}

func TestAccessService_ResolvePermission_NoRolesInherit(t *testing.T) {
	service := NewAccessService(&assignmentRepoMock{}, &roleRepoMock{}, nil, nil)

	permission, err := service.ResolvePermission(context.Background(), "core/ticket:view", 100, userCtx())
	if err != nil {
		t.Fatalf("ResolvePermission failed: %v", err)
	}
	if permission != domain.PermissionInherit {
		t.Errorf("expected inherit, got %s", permission)
	}
}

func TestAccessService_ResolvePermission_GrantsError(t *testing.T) {
	roles := &roleRepoMock{grantsErr: errors.New("query timeout")}
	assignments := &assignmentRepoMock{}
	assign(assignments, 1, 100, 1)

	service := NewAccessService(assignments, roles, nil, nil)

	if _, err := service.ResolvePermission(context.Background(), "core/ticket:view", 100, userCtx()); err == nil {
		t.Fatal("expected error from grants query")
	}
}

func TestReducePermissions(t *testing.T) {
	cases := []struct {
		name   string
		grants []domain.RoleCapability
		want   domain.Permission
	}{
		{"empty", nil, domain.PermissionInherit},
		{"single allow", []domain.RoleCapability{grant(1, "c", domain.PermissionAllow, 1)}, domain.PermissionAllow},
		{"single prevent", []domain.RoleCapability{grant(1, "c", domain.PermissionPrevent, 1)}, domain.PermissionPrevent},
		{"allow then prevent", []domain.RoleCapability{
			grant(1, "c", domain.PermissionAllow, 1),
			grant(2, "c", domain.PermissionPrevent, 1),
		}, domain.PermissionAllow},
		{"prevent then allow", []domain.RoleCapability{
			grant(1, "c", domain.PermissionPrevent, 1),
			grant(2, "c", domain.PermissionAllow, 1),
		}, domain.PermissionAllow},
		{"prohibit ends it", []domain.RoleCapability{
			grant(1, "c", domain.PermissionAllow, 1),
			grant(2, "c", domain.PermissionProhibit, 1),
			grant(3, "c", domain.PermissionAllow, 1),
		}, domain.PermissionProhibit},
		{"inherit rows contribute nothing", []domain.RoleCapability{
			grant(1, "c", domain.PermissionInherit, 1),
			grant(2, "c", domain.PermissionInherit, 1),
		}, domain.PermissionInherit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := reducePermissions(tc.grants); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
