package iam

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
)

// IdentityResolver is the part of Resolver consumed by views, middleware and
// handlers.
type IdentityResolver interface {
	GetIdentity(ctx context.Context, opts ResolveOptions) (*Identity, error)
}

var _ IdentityResolver = (*Resolver)(nil)

// View is a read-only projection of an identity. Every method is safe on a
// nil *View and on a view without identity; they report empty values.
type View struct {
	identity *Identity
	perms    map[string]struct{}
}

// NewView builds a view over a copy of id. id may be nil.
func NewView(id *Identity) *View {
	v := &View{identity: id.Clone()}
	if v.identity != nil {
		v.perms = make(map[string]struct{}, len(v.identity.PermissionCodes))
		for _, code := range v.identity.PermissionCodes {
			if code = strings.ToLower(strings.TrimSpace(code)); code != "" {
				v.perms[code] = struct{}{}
			}
		}
	}
	return v
}

func (v *View) id() *Identity {
	if v == nil {
		return nil
	}
	return v.identity
}

// Authenticated reports whether the view holds an identity.
func (v *View) Authenticated() bool { return v.id() != nil }

// Identity returns a copy of the underlying identity, or nil.
func (v *View) Identity() *Identity { return v.id().Clone() }

// AuthUID returns the auth provider subject, or "" when anonymous.
func (v *View) AuthUID() string {
	if id := v.id(); id != nil {
		return id.AuthUID
	}
	return ""
}

// UserID returns the application user id.
func (v *View) UserID() string {
	if id := v.id(); id != nil {
		return id.UserID
	}
	return ""
}

// Email returns the resolved email address.
func (v *View) Email() string {
	if id := v.id(); id != nil {
		return id.Email
	}
	return ""
}

// RoleCodes returns the role codes in resolution order.
func (v *View) RoleCodes() []string {
	if id := v.id(); id != nil {
		return nonNil(slices.Clone(id.RoleCodes))
	}
	return []string{}
}

// PermissionCodes returns the permission codes in resolution order.
func (v *View) PermissionCodes() []string {
	if id := v.id(); id != nil {
		return nonNil(slices.Clone(id.PermissionCodes))
	}
	return []string{}
}

// PermissionMeta returns the metadata recorded for code, if any.
func (v *View) PermissionMeta(code string) (PermissionMeta, bool) {
	id := v.id()
	if id == nil {
		return PermissionMeta{}, false
	}
	m, ok := id.PermissionMeta[code]
	return m, ok
}

// PrimaryRoleCode returns the role shown as the user's badge.
func (v *View) PrimaryRoleCode() string {
	if id := v.id(); id != nil {
		return id.PrimaryRoleCode
	}
	return ""
}

// IsSuperAdmin reports whether the identity bypasses permission checks.
func (v *View) IsSuperAdmin() bool {
	id := v.id()
	return id != nil && id.IsSuperAdmin
}

// IsAdmin reports whether the identity carries the admin flag.
func (v *View) IsAdmin() bool {
	id := v.id()
	return id != nil && id.IsAdmin
}

// DepartmentID returns a copy of the department id, or nil when unknown.
func (v *View) DepartmentID() *string {
	if id := v.id(); id != nil {
		return clonePtr(id.DepartmentID)
	}
	return nil
}

// DepartmentPath returns a copy of the materialized department path.
func (v *View) DepartmentPath() *string {
	if id := v.id(); id != nil {
		return clonePtr(id.DepartmentPath)
	}
	return nil
}

// DepartmentLevel returns a copy of the department depth.
func (v *View) DepartmentLevel() *int {
	if id := v.id(); id != nil {
		return clonePtr(id.DepartmentLevel)
	}
	return nil
}

// HasPerm reports whether the identity holds code, ignoring case. Super-admins
// hold every permission; an empty code is never held.
func (v *View) HasPerm(code string) bool {
	if v.IsSuperAdmin() {
		return true
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || v == nil {
		return false
	}
	_, ok := v.perms[code]
	return ok
}

type viewJSON struct {
	Authenticated   bool                      `json:"authenticated"`
	AuthUID         string                    `json:"authUid,omitempty"`
	UserID          string                    `json:"userId,omitempty"`
	Email           string                    `json:"email,omitempty"`
	RoleCodes       []string                  `json:"roleCodes"`
	PermissionCodes []string                  `json:"permissionCodes"`
	PermissionMeta  map[string]PermissionMeta `json:"permissionMetaMap,omitempty"`
	PrimaryRoleCode string                    `json:"primaryRoleCode,omitempty"`
	IsSuperAdmin    bool                      `json:"isSuperAdmin"`
	IsAdmin         bool                      `json:"isAdmin"`
	DepartmentID    *string                   `json:"departmentId,omitempty"`
	DepartmentPath  *string                   `json:"departmentPath,omitempty"`
	DepartmentLevel *int                      `json:"departmentLevel,omitempty"`
}

// MarshalJSON renders the projection served to UI clients.
func (v *View) MarshalJSON() ([]byte, error) {
	out := viewJSON{
		Authenticated:   v.Authenticated(),
		AuthUID:         v.AuthUID(),
		UserID:          v.UserID(),
		Email:           v.Email(),
		RoleCodes:       v.RoleCodes(),
		PermissionCodes: v.PermissionCodes(),
		PrimaryRoleCode: v.PrimaryRoleCode(),
		IsSuperAdmin:    v.IsSuperAdmin(),
		IsAdmin:         v.IsAdmin(),
		DepartmentID:    v.DepartmentID(),
		DepartmentPath:  v.DepartmentPath(),
		DepartmentLevel: v.DepartmentLevel(),
	}
	if id := v.id(); id != nil {
		out.PermissionMeta = id.PermissionMeta
	}
	return json.Marshal(out)
}

// IdentityProvider holds the latest view of a resolver and the state of the
// resolution that produced it.
type IdentityProvider struct {
	resolver IdentityResolver

	mu       sync.RWMutex
	view     *View
	inFlight int
	err      error
}

// NewIdentityProvider creates a provider with an empty view.
func NewIdentityProvider(resolver IdentityResolver) *IdentityProvider {
	return &IdentityProvider{resolver: resolver, view: NewView(nil)}
}

// Refresh resolves the identity and replaces the current view. On error the
// view becomes empty and Err reports the failure until the next refresh.
func (p *IdentityProvider) Refresh(ctx context.Context, opts ResolveOptions) (*View, error) {
	p.mu.Lock()
	p.inFlight++
	p.mu.Unlock()

	id, err := p.resolver.GetIdentity(ctx, opts)
	view := NewView(id)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	p.view = view
	p.err = err
	return view, err
}

// View returns the latest view.
func (p *IdentityProvider) View() *View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.view
}

// Loading reports whether a refresh is running.
func (p *IdentityProvider) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inFlight > 0
}

// Err returns the error of the latest refresh.
func (p *IdentityProvider) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}
