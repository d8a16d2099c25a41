package iam

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/repository"
)

// Call names recorded by the fakes.
const (
	callSession             = "session.CurrentUser"
	callProfileByID         = "profiles.GetByUserID"
	callProfileByEmail      = "profiles.GetByEmail"
	callUserByID            = "users.GetByID"
	callUserByEmail         = "users.GetByEmail"
	callDepartmentByID      = "departments.GetByID"
	callDepartmentMember    = "departments.GetMembershipByUserID"
	callRoleAssignments     = "roles.ListAssignments"
	callRoleGrants          = "permissions.ListRoleGrants"
	callUserGrants          = "permissions.ListUserGrants"
	callRoleAssign          = "roles.Assign"
	callRoleUnassign        = "roles.Unassign"
	callPermissionGrant     = "permissions.GrantToUser"
	callPermissionRevoke    = "permissions.RevokeFromUser"
	callRoleGetByCode       = "roles.GetByCode"
	callPermissionGetByCode = "permissions.GetByCode"
)

// callLog counts fake store calls and injects failures, blocking and gating
// per call name.
type callLog struct {
	mu     sync.Mutex
	counts map[string]int
	errs   map[string]error
	block  map[string]bool
	gates  map[string]chan struct{}
}

func newCallLog() *callLog {
	return &callLog{
		counts: map[string]int{},
		errs:   map[string]error{},
		block:  map[string]bool{},
		gates:  map[string]chan struct{}{},
	}
}

func (c *callLog) enter(ctx context.Context, name string) error {
	c.mu.Lock()
	c.counts[name]++
	err := c.errs[name]
	block := c.block[name]
	gate := c.gates[name]
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (c *callLog) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (c *callLog) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for name, v := range c.counts {
		if name != callSession {
			n += v
		}
	}
	return n
}

func (c *callLog) reset() {
	c.mu.Lock()
	c.counts = map[string]int{}
	c.mu.Unlock()
}

func (c *callLog) fail(name string, err error) {
	c.mu.Lock()
	c.errs[name] = err
	c.mu.Unlock()
}

func (c *callLog) hang(name string) {
	c.mu.Lock()
	c.block[name] = true
	c.mu.Unlock()
}

func (c *callLog) gate(name string) chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[name] = ch
	c.mu.Unlock()
	return ch
}

func notFound(what, key string) error {
	return fmt.Errorf("%s %q: %w", what, key, repository.ErrNotFound)
}

type fakeSession struct {
	calls     *callLog
	mu        sync.Mutex
	principal *Principal
}

func (s *fakeSession) CurrentUser(ctx context.Context) (*Principal, error) {
	if err := s.calls.enter(ctx, callSession); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.principal == nil {
		return nil, nil
	}
	p := *s.principal
	return &p, nil
}

func (s *fakeSession) signIn(authUID, email string) {
	s.mu.Lock()
	s.principal = &Principal{AuthUID: authUID, Email: email}
	s.mu.Unlock()
}

func (s *fakeSession) signOut() {
	s.mu.Lock()
	s.principal = nil
	s.mu.Unlock()
}

type fakeProfiles struct {
	calls   *callLog
	byID    map[string]*models.UserProfile
	byEmail map[string]*models.UserProfile
}

func (m *fakeProfiles) GetByUserID(ctx context.Context, userID string) (*models.UserProfile, error) {
	if err := m.calls.enter(ctx, callProfileByID); err != nil {
		return nil, err
	}
	if p, ok := m.byID[userID]; ok {
		c := *p
		return &c, nil
	}
	return nil, notFound("profile", userID)
}

func (m *fakeProfiles) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	if err := m.calls.enter(ctx, callProfileByEmail); err != nil {
		return nil, err
	}
	if p, ok := m.byEmail[email]; ok {
		c := *p
		return &c, nil
	}
	return nil, notFound("profile", email)
}

type fakeUsers struct {
	calls *callLog
	users []models.User
}

func (m *fakeUsers) Create(_ context.Context, user *models.User) error {
	m.users = append(m.users, *user)
	return nil
}

func (m *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := m.calls.enter(ctx, callUserByID); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, notFound("user", id)
}

func (m *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := m.calls.enter(ctx, callUserByEmail); err != nil {
		return nil, err
	}
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, notFound("user", email)
}

func (m *fakeUsers) List(context.Context) ([]models.User, error) {
	return append([]models.User(nil), m.users...), nil
}

type fakeDepartments struct {
	calls       *callLog
	departments map[string]*models.Department
	memberships map[string]*models.UserDepartment
}

func (m *fakeDepartments) Create(_ context.Context, dep *models.Department) error {
	m.departments[dep.ID] = dep
	return nil
}

func (m *fakeDepartments) GetByID(ctx context.Context, id string) (*models.Department, error) {
	if err := m.calls.enter(ctx, callDepartmentByID); err != nil {
		return nil, err
	}
	if d, ok := m.departments[id]; ok {
		c := *d
		return &c, nil
	}
	return nil, notFound("department", id)
}

func (m *fakeDepartments) GetMembershipByUserID(ctx context.Context, userID string) (*models.UserDepartment, error) {
	if err := m.calls.enter(ctx, callDepartmentMember); err != nil {
		return nil, err
	}
	if ud, ok := m.memberships[userID]; ok {
		c := *ud
		return &c, nil
	}
	return nil, notFound("department membership", userID)
}

func (m *fakeDepartments) AddMember(_ context.Context, userID, departmentID string) error {
	m.memberships[userID] = &models.UserDepartment{UserID: userID, DepartmentID: departmentID, Department: m.departments[departmentID]}
	return nil
}

type fakeRoles struct {
	calls       *callLog
	mu          sync.Mutex
	roles       []*models.Role
	assignments map[string][]string // userID → role ids
}

func (m *fakeRoles) Create(_ context.Context, role *models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, role)
	return nil
}

func (m *fakeRoles) GetByCode(ctx context.Context, code string) (*models.Role, error) {
	if err := m.calls.enter(ctx, callRoleGetByCode); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.Code == code {
			c := *r
			return &c, nil
		}
	}
	return nil, notFound("role", code)
}

func (m *fakeRoles) byID(id string) *models.Role {
	for _, r := range m.roles {
		if r.ID == id {
			c := *r
			return &c
		}
	}
	return nil
}

func (m *fakeRoles) List(context.Context) ([]models.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Role, 0, len(m.roles))
	for _, r := range m.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (m *fakeRoles) ListAssignments(ctx context.Context, userID string) ([]models.UserRole, error) {
	if err := m.calls.enter(ctx, callRoleAssignments); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserRole
	for _, id := range m.assignments[userID] {
		out = append(out, models.UserRole{UserID: userID, RoleID: id, Role: m.byID(id)})
	}
	return out, nil
}

func (m *fakeRoles) Assign(ctx context.Context, userID, roleID string, _ *string) error {
	if err := m.calls.enter(ctx, callRoleAssign); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.assignments[userID] {
		if id == roleID {
			return nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleID)
	return nil
}

func (m *fakeRoles) Unassign(ctx context.Context, userID, roleID string) error {
	if err := m.calls.enter(ctx, callRoleUnassign); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.assignments[userID]
	for i, id := range ids {
		if id == roleID {
			m.assignments[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return notFound("role assignment", userID+"/"+roleID)
}

type fakePermissions struct {
	calls       *callLog
	mu          sync.Mutex
	permissions []*models.Permission
	roleGrants  map[string][]string // roleID → permission ids
	userGrants  map[string][]string // userID → permission ids
}

func (m *fakePermissions) Create(_ context.Context, perm *models.Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissions = append(m.permissions, perm)
	return nil
}

func (m *fakePermissions) byID(id string) *models.Permission {
	for _, p := range m.permissions {
		if p.ID == id {
			c := *p
			return &c
		}
	}
	return nil
}

func (m *fakePermissions) GetByCode(ctx context.Context, code string) (*models.Permission, error) {
	if err := m.calls.enter(ctx, callPermissionGetByCode); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.permissions {
		if p.Code == code {
			c := *p
			return &c, nil
		}
	}
	return nil, notFound("permission", code)
}

func (m *fakePermissions) List(context.Context) ([]models.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *fakePermissions) ListRoleGrants(ctx context.Context, roleIDs []string) ([]models.RolePermission, error) {
	if err := m.calls.enter(ctx, callRoleGrants); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RolePermission
	for _, roleID := range roleIDs {
		for _, id := range m.roleGrants[roleID] {
			out = append(out, models.RolePermission{RoleID: roleID, PermissionID: id, Permission: m.byID(id)})
		}
	}
	return out, nil
}

func (m *fakePermissions) ListUserGrants(ctx context.Context, userID string) ([]models.UserPermission, error) {
	if err := m.calls.enter(ctx, callUserGrants); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserPermission
	for _, id := range m.userGrants[userID] {
		out = append(out, models.UserPermission{UserID: userID, PermissionID: id, Permission: m.byID(id)})
	}
	return out, nil
}

func (m *fakePermissions) GrantToRole(_ context.Context, roleID, permissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleGrants[roleID] = append(m.roleGrants[roleID], permissionID)
	return nil
}

func (m *fakePermissions) GrantToUser(ctx context.Context, userID, permissionID string, _ *string) error {
	if err := m.calls.enter(ctx, callPermissionGrant); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.userGrants[userID] {
		if id == permissionID {
			return nil
		}
	}
	m.userGrants[userID] = append(m.userGrants[userID], permissionID)
	return nil
}

func (m *fakePermissions) RevokeFromUser(ctx context.Context, userID, permissionID string) error {
	if err := m.calls.enter(ctx, callPermissionRevoke); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.userGrants[userID]
	for i, id := range ids {
		if id == permissionID {
			m.userGrants[userID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return notFound("user permission", userID+"/"+permissionID)
}

// testClock is a settable clock for cache expiry.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixture wires a Resolver to in-memory fakes.
type fixture struct {
	calls       *callLog
	clock       *testClock
	session     *fakeSession
	profiles    *fakeProfiles
	users       *fakeUsers
	departments *fakeDepartments
	roles       *fakeRoles
	permissions *fakePermissions
}

func newFixture() *fixture {
	calls := newCallLog()
	return &fixture{
		calls:       calls,
		clock:       &testClock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
		session:     &fakeSession{calls: calls},
		profiles:    &fakeProfiles{calls: calls, byID: map[string]*models.UserProfile{}, byEmail: map[string]*models.UserProfile{}},
		users:       &fakeUsers{calls: calls},
		departments: &fakeDepartments{calls: calls, departments: map[string]*models.Department{}, memberships: map[string]*models.UserDepartment{}},
		roles:       &fakeRoles{calls: calls, assignments: map[string][]string{}},
		permissions: &fakePermissions{calls: calls, roleGrants: map[string][]string{}, userGrants: map[string][]string{}},
	}
}

func (f *fixture) deps() ResolverDependencies {
	return ResolverDependencies{
		Session:     f.session,
		Profiles:    f.profiles,
		Users:       f.users,
		Departments: f.departments,
		Roles:       f.roles,
		Permissions: f.permissions,
	}
}

func (f *fixture) resolver(t *testing.T, cfg ResolverConfig) *Resolver {
	t.Helper()
	if cfg.Now == nil {
		cfg.Now = f.clock.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	r, err := NewResolver(f.deps(), cfg)
	require.NoError(t, err)
	return r
}

func (f *fixture) addProfile(p *models.UserProfile) {
	f.profiles.byID[p.UserID] = p
	if p.Email != nil {
		f.profiles.byEmail[*p.Email] = p
	}
}

func (f *fixture) addRole(id, code string) {
	f.roles.roles = append(f.roles.roles, &models.Role{ID: id, Code: code, Name: code, Status: true})
}

func (f *fixture) addPermission(id, code string, active bool, category string) {
	f.permissions.permissions = append(f.permissions.permissions, &models.Permission{
		ID:       id,
		Code:     code,
		Name:     code,
		Category: strPtr(category),
		Status:   models.ActiveFlag(active),
	})
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
