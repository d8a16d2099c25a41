package iam

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView_HasPerm(t *testing.T) {
	v := NewView(&Identity{
		AuthUID:         "u1",
		PermissionCodes: []string{"Evidence.Download", "lead.view"},
	})

	assert.True(t, v.HasPerm("evidence.download"))
	assert.True(t, v.HasPerm("EVIDENCE.DOWNLOAD"))
	assert.True(t, v.HasPerm(" lead.view "))
	assert.False(t, v.HasPerm("lead.assign"))
	assert.False(t, v.HasPerm(""))
	assert.False(t, v.HasPerm("   "))
}

func TestView_SuperAdminHoldsEverything(t *testing.T) {
	v := NewView(&Identity{AuthUID: "root", IsSuperAdmin: true, PermissionCodes: []string{}})

	assert.True(t, v.HasPerm("anything.random"))
	assert.True(t, v.HasPerm(""))
	assert.Empty(t, v.PermissionCodes())
}

func TestView_TotalWithoutIdentity(t *testing.T) {
	for name, v := range map[string]*View{"nil view": nil, "empty view": NewView(nil)} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, v.Authenticated())
			assert.False(t, v.HasPerm("lead.view"))
			assert.False(t, v.IsSuperAdmin())
			assert.False(t, v.IsAdmin())
			assert.Equal(t, []string{}, v.RoleCodes())
			assert.Equal(t, []string{}, v.PermissionCodes())
			assert.Empty(t, v.UserID())
			assert.Empty(t, v.PrimaryRoleCode())
			assert.Nil(t, v.DepartmentID())
			assert.Nil(t, v.DepartmentLevel())
			assert.Nil(t, v.Identity())
			_, ok := v.PermissionMeta("lead.view")
			assert.False(t, ok)
		})
	}
}

func TestView_Accessors(t *testing.T) {
	deptID, deptPath, level := "d-7", "/1/7", 2
	v := NewView(&Identity{
		AuthUID:         "auth-9",
		UserID:          "user-9",
		Email:           "ana@mappa.gov",
		PrimaryRoleCode: "inspector",
		IsAdmin:         true,
		DepartmentID:    &deptID,
		DepartmentPath:  &deptPath,
		DepartmentLevel: &level,
	})

	assert.Equal(t, "auth-9", v.AuthUID())
	assert.Equal(t, "user-9", v.UserID())
	assert.Equal(t, "ana@mappa.gov", v.Email())
	assert.Equal(t, "inspector", v.PrimaryRoleCode())
	assert.True(t, v.IsAdmin())
	assert.False(t, v.IsSuperAdmin())

	require.NotNil(t, v.DepartmentID())
	require.NotNil(t, v.DepartmentPath())
	require.NotNil(t, v.DepartmentLevel())
	*v.DepartmentID() = "other"
	*v.DepartmentPath() = "/9"
	*v.DepartmentLevel() = 9
	assert.Equal(t, "d-7", *v.DepartmentID())
	assert.Equal(t, "/1/7", *v.DepartmentPath())
	assert.Equal(t, 2, *v.DepartmentLevel())
}

func TestView_IsolatedFromSource(t *testing.T) {
	id := &Identity{AuthUID: "u1", RoleCodes: []string{"viewer"}, PermissionCodes: []string{"lead.view"}}
	v := NewView(id)

	id.PermissionCodes[0] = "risk.view"
	v.RoleCodes()[0] = "admin"

	assert.True(t, v.HasPerm("lead.view"))
	assert.Equal(t, []string{"viewer"}, v.RoleCodes())
}

func TestView_MarshalJSON(t *testing.T) {
	path := "root.hanoi"
	level := 2
	v := NewView(&Identity{
		AuthUID:         "auth-123",
		UserID:          "auth-123",
		RoleCodes:       []string{"inspector"},
		PermissionCodes: []string{"lead.view"},
		PermissionMeta:  map[string]PermissionMeta{"lead.view": {Category: "lead", Action: "view"}},
		PrimaryRoleCode: "inspector",
		DepartmentPath:  &path,
		DepartmentLevel: &level,
	})

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"authenticated": true,
		"authUid": "auth-123",
		"userId": "auth-123",
		"roleCodes": ["inspector"],
		"permissionCodes": ["lead.view"],
		"permissionMetaMap": {"lead.view": {"category": "lead", "action": "view"}},
		"primaryRoleCode": "inspector",
		"isSuperAdmin": false,
		"isAdmin": false,
		"departmentPath": "root.hanoi",
		"departmentLevel": 2
	}`, string(raw))

	raw, err = json.Marshal(NewView(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"authenticated":false,"roleCodes":[],"permissionCodes":[],"isSuperAdmin":false,"isAdmin":false}`, string(raw))
}

type stubResolver struct {
	identity *Identity
	err      error
	opts     []ResolveOptions
	block    chan struct{}
}

func (s *stubResolver) GetIdentity(_ context.Context, opts ResolveOptions) (*Identity, error) {
	s.opts = append(s.opts, opts)
	if s.block != nil {
		<-s.block
	}
	return s.identity, s.err
}

func TestIdentityProvider_Refresh(t *testing.T) {
	stub := &stubResolver{identity: &Identity{AuthUID: "u1", PermissionCodes: []string{"audit.view"}}}
	p := NewIdentityProvider(stub)

	assert.False(t, p.View().Authenticated())

	v, err := p.Refresh(context.Background(), ResolveOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, v.HasPerm("audit.view"))
	assert.True(t, p.View().HasPerm("audit.view"))
	assert.Equal(t, []ResolveOptions{{Force: true}}, stub.opts)
	assert.NoError(t, p.Err())
	assert.False(t, p.Loading())
}

func TestIdentityProvider_ErrorAndLoading(t *testing.T) {
	stub := &stubResolver{err: ErrSessionUnavailable, block: make(chan struct{})}
	p := NewIdentityProvider(stub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.Refresh(context.Background(), ResolveOptions{})
	}()

	assert.Eventually(t, p.Loading, time.Second, time.Millisecond)
	close(stub.block)
	<-done

	assert.False(t, p.Loading())
	assert.True(t, errors.Is(p.Err(), ErrSessionUnavailable))
	assert.False(t, p.View().Authenticated())
}
