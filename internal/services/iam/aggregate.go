package iam

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/mappa-gov/portal-iam/internal/telemetry"
)

// GetUserRoles returns the ids and codes of every role assigned to userID.
// Roles are not filtered by status. A failed lookup yields an empty set.
func (r *Resolver) GetUserRoles(ctx context.Context, userID string) RoleSet {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.GetUserRoles",
		attribute.String(telemetry.AttrUserID, userID),
	)
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	var ids, codes orderedSet
	assignments, err := r.deps.Roles.ListAssignments(lctx, userID)
	if err != nil {
		r.lookupFailed(stepUserRoles, userID, err)
		return RoleSet{RoleIDs: []string{}, RoleCodes: []string{}}
	}
	for _, a := range assignments {
		ids.add(a.RoleID)
		if a.Role != nil {
			ids.add(a.Role.ID)
			codes.add(a.Role.Code)
		}
	}

	span.SetAttributes(attribute.Int(telemetry.AttrRoleCount, len(codes.items)))
	return RoleSet{RoleIDs: ids.list(), RoleCodes: codes.list()}
}

// GetRolePermissions returns the permissions granted to any of roleIDs.
// Ids are collected for every grant; codes and metadata only for active
// permissions. An empty roleIDs performs no lookup.
func (r *Resolver) GetRolePermissions(ctx context.Context, roleIDs []string) PermissionSet {
	var roles orderedSet
	roles.add(roleIDs...)
	if len(roles.items) == 0 {
		return emptyPermissionSet()
	}

	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.GetRolePermissions",
		attribute.Int(telemetry.AttrRoleCount, len(roles.items)),
	)
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	grants, err := r.deps.Permissions.ListRoleGrants(lctx, roles.list())
	if err != nil {
		r.lookupFailed(stepRolePermissions, strings.Join(roles.items, ","), err)
		return emptyPermissionSet()
	}

	var c permissionCollector
	for _, g := range grants {
		c.add(g.PermissionID, g.Permission)
	}
	set := c.set()
	span.SetAttributes(attribute.Int(telemetry.AttrPermCount, len(set.PermissionCodes)))
	return set
}

// GetUserPermissions returns the permissions granted directly to userID,
// with the same status rules as GetRolePermissions.
func (r *Resolver) GetUserPermissions(ctx context.Context, userID string) PermissionSet {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "iam.GetUserPermissions",
		attribute.String(telemetry.AttrUserID, userID),
	)
	defer span.End()

	lctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	grants, err := r.deps.Permissions.ListUserGrants(lctx, userID)
	if err != nil {
		r.lookupFailed(stepUserPermissions, userID, err)
		return emptyPermissionSet()
	}

	var c permissionCollector
	for _, g := range grants {
		c.add(g.PermissionID, g.Permission)
	}
	set := c.set()
	span.SetAttributes(attribute.Int(telemetry.AttrPermCount, len(set.PermissionCodes)))
	return set
}

type permissionCollector struct {
	ids   orderedSet
	codes orderedSet
	meta  map[string]PermissionMeta
}

func (c *permissionCollector) add(permissionID string, p *models.Permission) {
	c.ids.add(permissionID)
	if p == nil {
		return
	}
	c.ids.add(p.ID)
	if !p.Status.Active() {
		return
	}
	code := strings.TrimSpace(p.Code)
	if code == "" {
		return
	}
	c.codes.add(code)
	if c.meta == nil {
		c.meta = make(map[string]PermissionMeta)
	}
	c.meta[code] = PermissionMeta{
		Category: deref(p.Category),
		Module:   deref(p.Module),
		Resource: deref(p.Resource),
		Action:   deref(p.Action),
	}
}

func (c *permissionCollector) set() PermissionSet {
	return PermissionSet{
		PermissionIDs:   c.ids.list(),
		PermissionCodes: c.codes.list(),
		PermissionMeta:  c.meta,
	}
}

func emptyPermissionSet() PermissionSet {
	return PermissionSet{PermissionIDs: []string{}, PermissionCodes: []string{}}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetEffectivePermissions merges the permissions userID holds through roles
// with its direct grants, direct grants last.
func (r *Resolver) GetEffectivePermissions(ctx context.Context, userID string) PermissionSet {
	roles := r.GetUserRoles(ctx, userID)
	return MergePermissions(r.GetRolePermissions(ctx, roles.RoleIDs), r.GetUserPermissions(ctx, userID))
}
