package server

import (
	"context"

	"github.com/mappa-gov/portal-iam/internal/services/iam"
)

// identityService is the part of the resolver used by the handlers.
type identityService interface {
	GetIdentity(ctx context.Context, opts iam.ResolveOptions) (*iam.Identity, error)
	GetUserRoles(ctx context.Context, userID string) iam.RoleSet
	GetEffectivePermissions(ctx context.Context, userID string) iam.PermissionSet
	ClearIdentityCache(ctx context.Context)
}

// adminService is the part of iam.Admin used by the handlers.
type adminService interface {
	AssignRole(ctx context.Context, userID, roleCode string, assignedBy *string) error
	RevokeRole(ctx context.Context, userID, roleCode string) error
	GrantPermission(ctx context.Context, userID, permCode string, grantedBy *string) error
	RevokePermission(ctx context.Context, userID, permCode string) error
}

var (
	_ identityService = (*iam.Resolver)(nil)
	_ adminService    = (*iam.Admin)(nil)
)
