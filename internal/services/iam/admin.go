package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mappa-gov/portal-iam/internal/repository"
)

var (
	// ErrUnknownRole is returned when a role code matches no role.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownPermission is returned when a permission code matches no permission.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrNotAssigned is returned when revoking something the user does not hold.
	ErrNotAssigned = errors.New("not assigned")
)

// CacheInvalidator evicts cached identities.
type CacheInvalidator interface {
	ClearIdentityCache(ctx context.Context)
}

// Admin changes role and permission assignments. Every successful change
// clears the identity cache.
type Admin struct {
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	cache       CacheInvalidator
	logger      logrus.FieldLogger
}

// NewAdmin creates an Admin.
func NewAdmin(roles repository.RoleRepository, permissions repository.PermissionRepository, cache CacheInvalidator, logger logrus.FieldLogger) *Admin {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Admin{
		roles:       roles,
		permissions: permissions,
		cache:       cache,
		logger:      logger.WithField("component", "iam_admin"),
	}
}

// AssignRole gives userID the role with roleCode. Assigning a held role is a no-op.
func (a *Admin) AssignRole(ctx context.Context, userID, roleCode string, assignedBy *string) error {
	role, err := a.roles.GetByCode(ctx, strings.TrimSpace(roleCode))
	if err != nil {
		return lookupErr(err, ErrUnknownRole, roleCode)
	}
	if err := a.roles.Assign(ctx, userID, role.ID, assignedBy); err != nil {
		return err
	}
	a.changed(ctx, "role assigned", logrus.Fields{"user_id": userID, "role": role.Code})
	return nil
}

// RevokeRole removes the role with roleCode from userID.
func (a *Admin) RevokeRole(ctx context.Context, userID, roleCode string) error {
	role, err := a.roles.GetByCode(ctx, strings.TrimSpace(roleCode))
	if err != nil {
		return lookupErr(err, ErrUnknownRole, roleCode)
	}
	if err := a.roles.Unassign(ctx, userID, role.ID); err != nil {
		return notAssignedErr(err)
	}
	a.changed(ctx, "role revoked", logrus.Fields{"user_id": userID, "role": role.Code})
	return nil
}

// GrantPermission grants the permission with permCode directly to userID.
func (a *Admin) GrantPermission(ctx context.Context, userID, permCode string, grantedBy *string) error {
	perm, err := a.permissions.GetByCode(ctx, strings.TrimSpace(permCode))
	if err != nil {
		return lookupErr(err, ErrUnknownPermission, permCode)
	}
	if err := a.permissions.GrantToUser(ctx, userID, perm.ID, grantedBy); err != nil {
		return err
	}
	a.changed(ctx, "permission granted", logrus.Fields{"user_id": userID, "permission": perm.Code})
	return nil
}

// RevokePermission removes a direct grant of permCode from userID. Grants
// inherited through roles are unaffected.
func (a *Admin) RevokePermission(ctx context.Context, userID, permCode string) error {
	perm, err := a.permissions.GetByCode(ctx, strings.TrimSpace(permCode))
	if err != nil {
		return lookupErr(err, ErrUnknownPermission, permCode)
	}
	if err := a.permissions.RevokeFromUser(ctx, userID, perm.ID); err != nil {
		return notAssignedErr(err)
	}
	a.changed(ctx, "permission revoked", logrus.Fields{"user_id": userID, "permission": perm.Code})
	return nil
}

func (a *Admin) changed(ctx context.Context, msg string, fields logrus.Fields) {
	a.cache.ClearIdentityCache(ctx)
	a.logger.WithFields(fields).Info(msg)
}

func lookupErr(err, unknown error, code string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %q", unknown, code)
	}
	return err
}

func notAssignedErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotAssigned, err)
	}
	return err
}
