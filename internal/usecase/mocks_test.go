package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/repository"
)

// Mock repositories shared by the service tests.

type contextRepoMock struct {
	contexts  map[int64]domain.Context
	nextID    int64
	createErr error
	getErr    error
	// raceWith, when set, makes Create fail and plants this context so a
	// follow-up lookup finds it, simulating a lost creation race.
	raceWith *domain.Context
}

func (m *contextRepoMock) GetByLevelInstance(_ context.Context, level domain.ContextLevel, instanceID int64) (*domain.Context, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, c := range m.contexts {
		if c.Level == level && c.InstanceID == instanceID {
			found := c
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *contextRepoMock) GetByID(_ context.Context, id int64) (*domain.Context, error) {
	if c, ok := m.contexts[id]; ok {
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (m *contextRepoMock) Create(_ context.Context, level domain.ContextLevel, instanceID int64, parent *domain.Context) (*domain.Context, error) {
	if m.raceWith != nil {
		if m.contexts == nil {
			m.contexts = make(map[int64]domain.Context)
		}
		m.contexts[m.raceWith.ID] = *m.raceWith
		m.raceWith = nil
		return nil, repository.ErrNotFound
	}
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.contexts == nil {
		m.contexts = make(map[int64]domain.Context)
	}
	m.nextID++
	c := domain.Context{ID: m.nextID, Level: level, InstanceID: instanceID, Depth: 1}
	if parent != nil {
		c.Path = parent.Path + "/" + strconv.FormatInt(c.ID, 10)
		c.Depth = parent.Depth + 1
	} else {
		c.Path = "/" + strconv.FormatInt(c.ID, 10)
	}
	m.contexts[c.ID] = c
	return &c, nil
}

func (m *contextRepoMock) GetMany(_ context.Context, ids []int64) ([]domain.Context, error) {
	out := make([]domain.Context, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.contexts[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Depth < out[j].Depth })
	return out, nil
}

type grantKey struct {
	roleID     int64
	capability string
	contextID  int64
}

type roleRepoMock struct {
	roles      map[int64]domain.Role
	grants     map[grantKey]domain.RoleCapability
	users      map[int64][]domain.User
	nextRoleID int64
	nextGrant  int64
	createErr  error
	upsertErr  error
	deleteErr  error
	grantsErr  error
	swapped    [][2]int64
	// afterGrants, when set, runs after GrantsFor snapshots its result.
	// Tests use it to mutate grants or caches mid-resolution.
	afterGrants func()
}

func (m *roleRepoMock) Create(_ context.Context, role *domain.Role) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.roles == nil {
		m.roles = make(map[int64]domain.Role)
	}
	m.nextRoleID++
	role.ID = m.nextRoleID
	role.SortOrder = len(m.roles) + 1
	m.roles[role.ID] = *role
	return nil
}

func (m *roleRepoMock) GetByID(_ context.Context, id int64) (*domain.Role, error) {
	if role, ok := m.roles[id]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) GetByShortname(_ context.Context, shortname string) (*domain.Role, error) {
	for _, role := range m.roles {
		if role.Shortname == shortname {
			found := role
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *roleRepoMock) List(_ context.Context) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(m.roles))
	for _, role := range m.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].SortOrder < roles[j].SortOrder })
	return roles, nil
}

func (m *roleRepoMock) Update(_ context.Context, role domain.Role) error {
	if _, exists := m.roles[role.ID]; !exists {
		return repository.ErrNotFound
	}
	m.roles[role.ID] = role
	return nil
}

func (m *roleRepoMock) SwapSortOrder(_ context.Context, a, b domain.Role) error {
	ra, ok := m.roles[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	rb, ok := m.roles[b.ID]
	if !ok {
		return repository.ErrNotFound
	}
	ra.SortOrder, rb.SortOrder = rb.SortOrder, ra.SortOrder
	m.roles[ra.ID] = ra
	m.roles[rb.ID] = rb
	m.swapped = append(m.swapped, [2]int64{a.ID, b.ID})
	return nil
}

func (m *roleRepoMock) DeleteCascade(_ context.Context, roleID int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.roles[roleID]; !exists {
		return repository.ErrNotFound
	}
	delete(m.roles, roleID)
	for key := range m.grants {
		if key.roleID == roleID {
			delete(m.grants, key)
		}
	}
	return nil
}

func (m *roleRepoMock) UpsertCapability(_ context.Context, roleID int64, capability string, permission domain.Permission, contextID int64) (port.UpsertGrantResult, error) {
	if m.upsertErr != nil {
		return port.UpsertGrantResult{}, m.upsertErr
	}
	if m.grants == nil {
		m.grants = make(map[grantKey]domain.RoleCapability)
	}
	key := grantKey{roleID: roleID, capability: capability, contextID: contextID}
	if existing, ok := m.grants[key]; ok {
		previous := existing.Permission
		existing.Permission = permission
		m.grants[key] = existing
		return port.UpsertGrantResult{GrantID: existing.ID, Previous: previous}, nil
	}
	m.nextGrant++
	m.grants[key] = domain.RoleCapability{
		ID:         m.nextGrant,
		RoleID:     roleID,
		Capability: capability,
		Permission: permission,
		ContextID:  contextID,
	}
	return port.UpsertGrantResult{GrantID: m.nextGrant, Created: true}, nil
}

func (m *roleRepoMock) DeleteCapability(_ context.Context, roleID int64, capability string, contextID int64) (bool, error) {
	key := grantKey{roleID: roleID, capability: capability, contextID: contextID}
	if _, ok := m.grants[key]; !ok {
		return false, nil
	}
	delete(m.grants, key)
	return true, nil
}

func (m *roleRepoMock) Capabilities(_ context.Context, roleID, contextID int64) (map[string]domain.Permission, error) {
	out := make(map[string]domain.Permission)
	for key, grant := range m.grants {
		if key.roleID == roleID && key.contextID == contextID {
			out[key.capability] = grant.Permission
		}
	}
	return out, nil
}

func (m *roleRepoMock) GrantsFor(_ context.Context, roleIDs, contextIDs []int64, capability string) ([]domain.RoleCapability, error) {
	if m.grantsErr != nil {
		return nil, m.grantsErr
	}
	roleSet := make(map[int64]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		roleSet[id] = struct{}{}
	}
	ctxSet := make(map[int64]struct{}, len(contextIDs))
	for _, id := range contextIDs {
		ctxSet[id] = struct{}{}
	}
	out := make([]domain.RoleCapability, 0)
	for key, grant := range m.grants {
		if key.capability != capability {
			continue
		}
		if _, ok := roleSet[key.roleID]; !ok {
			continue
		}
		if _, ok := ctxSet[key.contextID]; !ok {
			continue
		}
		out = append(out, grant)
	}
	if m.afterGrants != nil {
		m.afterGrants()
	}
	return out, nil
}

func (m *roleRepoMock) UsersWithRole(_ context.Context, roleID, contextID int64) ([]domain.User, error) {
	return m.users[roleID], nil
}

type assignKey struct {
	roleID    int64
	userID    int64
	contextID int64
}

type assignmentRepoMock struct {
	assignments map[assignKey]domain.RoleAssignment
	roles       *roleRepoMock
	nextID      int64
	createErr   error
	rolesErr    error
}

func (m *assignmentRepoMock) Get(_ context.Context, roleID, userID, contextID int64) (*domain.RoleAssignment, error) {
	if a, ok := m.assignments[assignKey{roleID, userID, contextID}]; ok {
		return &a, nil
	}
	return nil, repository.ErrNotFound
}

func (m *assignmentRepoMock) Create(_ context.Context, assignment *domain.RoleAssignment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.assignments == nil {
		m.assignments = make(map[assignKey]domain.RoleAssignment)
	}
	m.nextID++
	assignment.ID = m.nextID
	m.assignments[assignKey{assignment.RoleID, assignment.UserID, assignment.ContextID}] = *assignment
	return nil
}

func (m *assignmentRepoMock) Delete(_ context.Context, roleID, userID, contextID int64) (bool, error) {
	key := assignKey{roleID, userID, contextID}
	if _, ok := m.assignments[key]; !ok {
		return false, nil
	}
	delete(m.assignments, key)
	return true, nil
}

func (m *assignmentRepoMock) RolesOfUser(_ context.Context, userID, contextID int64, now time.Time) ([]domain.Role, error) {
	out := make([]domain.Role, 0)
	for key, a := range m.assignments {
		if key.userID != userID || key.contextID != contextID {
			continue
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			continue
		}
		if m.roles != nil {
			if role, ok := m.roles.roles[key.roleID]; ok {
				out = append(out, role)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *assignmentRepoMock) RoleIDsInContexts(_ context.Context, userID int64, contextIDs []int64, now time.Time) ([]int64, error) {
	if m.rolesErr != nil {
		return nil, m.rolesErr
	}
	ctxSet := make(map[int64]struct{}, len(contextIDs))
	for _, id := range contextIDs {
		ctxSet[id] = struct{}{}
	}
	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for key, a := range m.assignments {
		if key.userID != userID {
			continue
		}
		if _, ok := ctxSet[key.contextID]; !ok {
			continue
		}
		if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
			continue
		}
		if _, dup := seen[key.roleID]; dup {
			continue
		}
		seen[key.roleID] = struct{}{}
		out = append(out, key.roleID)
	}
	return out, nil
}

type auditRepoMock struct {
	events    []domain.AuditEvent
	insertErr error
}

func (m *auditRepoMock) Insert(_ context.Context, event domain.AuditEvent) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return event.ID, nil
}

func (m *auditRepoMock) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	out := make([]domain.AuditEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		event := m.events[i]
		if filter.Name != "" && event.Name != filter.Name {
			continue
		}
		if filter.UserID != nil && event.UserID != *filter.UserID {
			continue
		}
		if filter.ContextID != nil && event.ContextID != *filter.ContextID {
			continue
		}
		out = append(out, event)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *auditRepoMock) lastEvent() *domain.AuditEvent {
	if len(m.events) == 0 {
		return nil
	}
	return &m.events[len(m.events)-1]
}

// verdictCacheMock mirrors the Redis implementation's generation scheme:
// verdicts live under versioned handles, and invalidation bumps a counter so
// entries written under older generations become unreachable.
type verdictCacheMock struct {
	verdicts        map[string]bool
	globalGen       int64
	userGens        map[int64]int64
	getErr          error
	setErr          error
	invalidateErr   error
	userInvalidated []int64
	allInvalidated  int
	gets            int
	sets            int
}

func (m *verdictCacheMock) handle(userID int64, capability string, contextID int64) string {
	return fmt.Sprintf("g%d:u%d:%d:%s:%d", m.globalGen, m.userGens[userID], userID, capability, contextID)
}

// seed stores a verdict under the current generations, for test setup.
func (m *verdictCacheMock) seed(userID int64, capability string, contextID int64, verdict bool) {
	if m.verdicts == nil {
		m.verdicts = make(map[string]bool)
	}
	m.verdicts[m.handle(userID, capability, contextID)] = verdict
}

// lookup reads the verdict reachable under the current generations.
func (m *verdictCacheMock) lookup(userID int64, capability string, contextID int64) (bool, bool) {
	verdict, ok := m.verdicts[m.handle(userID, capability, contextID)]
	return verdict, ok
}

func (m *verdictCacheMock) Get(_ context.Context, userID int64, capability string, contextID int64) (bool, bool, string, error) {
	m.gets++
	if m.getErr != nil {
		return false, false, "", m.getErr
	}
	h := m.handle(userID, capability, contextID)
	verdict, ok := m.verdicts[h]
	return verdict, ok, h, nil
}

func (m *verdictCacheMock) Set(_ context.Context, handle string, verdict bool) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if m.verdicts == nil {
		m.verdicts = make(map[string]bool)
	}
	m.verdicts[handle] = verdict
	return nil
}

func (m *verdictCacheMock) InvalidateUser(_ context.Context, userID int64) error {
	if m.invalidateErr != nil {
		return m.invalidateErr
	}
	m.userInvalidated = append(m.userInvalidated, userID)
	if m.userGens == nil {
		m.userGens = make(map[int64]int64)
	}
	m.userGens[userID]++
	return nil
}

func (m *verdictCacheMock) InvalidateAll(_ context.Context) error {
	if m.invalidateErr != nil {
		return m.invalidateErr
	}
	m.allInvalidated++
	m.globalGen++
	return nil
}

type publisherMock struct {
	assigned   []domain.RoleAssignedEvent
	unassigned []domain.RoleUnassignedEvent
	capability []domain.CapabilityChangedEvent
	capEvents  []string
	publishErr error
}

func (m *publisherMock) PublishRoleAssigned(_ context.Context, event domain.RoleAssignedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.assigned = append(m.assigned, event)
	return nil
}

func (m *publisherMock) PublishRoleUnassigned(_ context.Context, event domain.RoleUnassignedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.unassigned = append(m.unassigned, event)
	return nil
}

func (m *publisherMock) PublishCapabilityAssigned(_ context.Context, event domain.CapabilityChangedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.capability = append(m.capability, event)
	m.capEvents = append(m.capEvents, domain.EventCapabilityAssigned)
	return nil
}

func (m *publisherMock) PublishCapabilityUpdated(_ context.Context, event domain.CapabilityChangedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.capability = append(m.capability, event)
	m.capEvents = append(m.capEvents, domain.EventCapabilityUpdated)
	return nil
}

func (m *publisherMock) PublishCapabilityRevoked(_ context.Context, event domain.CapabilityChangedEvent) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.capability = append(m.capability, event)
	m.capEvents = append(m.capEvents, domain.EventCapabilityRevoked)
	return nil
}

// Interface conformance checks.
var (
	_ port.ContextRepository    = (*contextRepoMock)(nil)
	_ port.RoleRepository       = (*roleRepoMock)(nil)
	_ port.AssignmentRepository = (*assignmentRepoMock)(nil)
	_ port.AuditRepository      = (*auditRepoMock)(nil)
	_ port.VerdictCache         = (*verdictCacheMock)(nil)
	_ port.EventPublisher       = (*publisherMock)(nil)
)
