package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mappa-gov/portal-iam/internal/auth"
	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/logging"
	"github.com/mappa-gov/portal-iam/internal/migrations"
	"github.com/mappa-gov/portal-iam/internal/repository"
	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

const testSecret = "router-test-secret"

type testServer struct {
	handler  http.Handler
	resolver *iam.Resolver
}

// newTestServer serves the IAM API over a migrated in-memory database with
// two users: admin-1 (admin) and insp-1 (inspector).
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	db, err := bunx.NewDB(ctx, "file::memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Migrate(ctx, db)
	require.NoError(t, err)

	users := repository.NewBunUserRepository(db)
	roles := repository.NewBunRoleRepository(db)
	perms := repository.NewBunPermissionRepository(db)

	require.NoError(t, users.Create(ctx, &models.User{ID: "admin-1", Email: "admin@mappa.test", FullName: "Admin"}))
	require.NoError(t, users.Create(ctx, &models.User{ID: "insp-1", Email: "insp@mappa.test", FullName: "Inspector"}))

	resolver, err := iam.NewResolver(iam.ResolverDependencies{
		Session:     iam.ContextSessionReader{},
		Profiles:    repository.NewBunProfileRepository(db),
		Users:       users,
		Departments: repository.NewBunDepartmentRepository(db),
		Roles:       roles,
		Permissions: perms,
	}, iam.ResolverConfig{
		Cache:       iam.NewLRUCache(64, iam.DefaultIdentityTTL),
		SharedCache: true,
		Logger:      logging.Discard(),
	})
	require.NoError(t, err)

	admin := iam.NewAdmin(roles, perms, resolver, logging.Discard())
	require.NoError(t, admin.AssignRole(ctx, "admin-1", "admin", nil))
	require.NoError(t, admin.AssignRole(ctx, "insp-1", "inspector", nil))

	verifier, err := auth.NewHMACVerifier(testSecret, "mappa-test")
	require.NoError(t, err)

	handler, err := NewHandler(RouterOptions{
		Identity: resolver,
		Admin:    admin,
		Verifier: verifier,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return &testServer{handler: handler, resolver: resolver}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	tok, err := auth.SignHMACToken(testSecret, "mappa-test", subject, "", time.Minute)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, subject, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, subject))
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type meResponse struct {
	Authenticated   bool     `json:"authenticated"`
	UserID          string   `json:"userId"`
	RoleCodes       []string `json:"roleCodes"`
	PermissionCodes []string `json:"permissionCodes"`
	PrimaryRoleCode string   `json:"primaryRoleCode"`
	IsAdmin         bool     `json:"isAdmin"`
	IsSuperAdmin    bool     `json:"isSuperAdmin"`
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mappa_iam_http_requests_total")
}

func TestGetMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/iam/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/iam/me", "insp-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[meResponse](t, rec)
	assert.True(t, me.Authenticated)
	assert.Equal(t, "insp-1", me.UserID)
	assert.Equal(t, []string{"inspector"}, me.RoleCodes)
	assert.Equal(t, "inspector", me.PrimaryRoleCode)
	assert.Contains(t, me.PermissionCodes, "evidence.download")
	assert.NotContains(t, me.PermissionCodes, "iam.roles.assign")
	assert.False(t, me.IsAdmin)

	rec = s.do(t, http.MethodGet, "/api/iam/me", "admin-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[meResponse](t, rec).IsAdmin)
}

func TestGetMe_InvalidToken(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/iam/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCheckPermission(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/iam/me/permissions/Evidence.Download", "insp-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":"Evidence.Download","granted":true}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/iam/me/permissions/iam.cache.clear", "insp-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"code":"iam.cache.clear","granted":false}`, rec.Body.String())
}

func TestUserRoutesRequirePermissions(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/iam/users/insp-1/roles", "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/iam/users/insp-1/roles", "insp-1", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/iam/cache", "insp-1", "").Code)

	rec := s.do(t, http.MethodGet, "/api/iam/users/insp-1/roles", "admin-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	roles := decode[iam.RoleSet](t, rec)
	assert.Equal(t, []string{"inspector"}, roles.RoleCodes)
	assert.Len(t, roles.RoleIDs, 1)

	rec = s.do(t, http.MethodGet, "/api/iam/users/insp-1/permissions", "admin-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[iam.PermissionSet](t, rec)
	assert.Contains(t, perms.PermissionCodes, "lead.assign")
	assert.Equal(t, "custody", perms.PermissionMeta["evidence.download"].Category)
}

func TestGuardedRoutesWithEncodedSlash(t *testing.T) {
	s := newTestServer(t)

	routes := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/api/iam/users/a%2Fb/roles", ""},
		{http.MethodPost, "/api/iam/users/a%2Fb/roles", `{"roleCode":"admin"}`},
		{http.MethodDelete, "/api/iam/users/a%2Fb/roles/in%2Fspector", ""},
		{http.MethodGet, "/api/iam/users/a%2Fb/permissions", ""},
		{http.MethodPost, "/api/iam/users/a%2Fb/permissions", `{"permissionCode":"iam.cache.clear"}`},
		{http.MethodDelete, "/api/iam/users/a%2Fb/permissions/iam%2Fcache", ""},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, s.do(t, rt.method, rt.path, "", rt.body).Code)
			assert.Equal(t, http.StatusForbidden, s.do(t, rt.method, rt.path, "insp-1", rt.body).Code)
		})
	}

	rec := s.do(t, http.MethodGet, "/api/iam/users/a%2Fb/roles", "admin-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[iam.RoleSet](t, rec).RoleCodes)
}

func TestAssignAndRevokeRole(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/iam/users/insp-1/roles", "admin-1", `{"roleCode":"viewer"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/iam/me", "insp-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"inspector", "viewer"}, decode[meResponse](t, rec).RoleCodes)
	assert.Contains(t, decode[meResponse](t, rec).PermissionCodes, "wallboard.view")

	rec = s.do(t, http.MethodDelete, "/api/iam/users/insp-1/roles/viewer", "admin-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/iam/users/insp-1/roles/viewer", "admin-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/iam/users/insp-1/roles", "admin-1", `{"roleCode":"wizard"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/iam/users/insp-1/roles", "admin-1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantInvalidatesCachedIdentity(t *testing.T) {
	s := newTestServer(t)

	// Warm the cache for the inspector.
	rec := s.do(t, http.MethodGet, "/api/iam/me/permissions/iam.cache.clear", "insp-1", "")
	require.JSONEq(t, `{"code":"iam.cache.clear","granted":false}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/iam/users/insp-1/permissions", "admin-1", `{"permissionCode":"iam.cache.clear"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/iam/me/permissions/iam.cache.clear", "insp-1", "")
	assert.JSONEq(t, `{"code":"iam.cache.clear","granted":true}`, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/iam/cache", "insp-1", "").Code)

	rec = s.do(t, http.MethodDelete, "/api/iam/users/insp-1/permissions/iam.cache.clear", "admin-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/iam/me/permissions/iam.cache.clear", "insp-1", "")
	assert.JSONEq(t, `{"code":"iam.cache.clear","granted":false}`, rec.Body.String())
}

func TestNewRouter_RequiresServices(t *testing.T) {
	_, err := NewRouter(RouterOptions{})
	require.Error(t, err)
}
