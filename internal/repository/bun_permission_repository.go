package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/uptrace/bun"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db *bun.DB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db *bun.DB) PermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Create inserts a new permission
func (r *BunPermissionRepository) Create(ctx context.Context, perm *models.Permission) error {
	if perm.ID == "" {
		perm.ID = bunx.NewUUIDv7()
	}
	if _, err := r.db.NewInsert().Model(perm).Exec(ctx); err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// GetByCode retrieves a permission by its code
func (r *BunPermissionRepository) GetByCode(ctx context.Context, code string) (*models.Permission, error) {
	perm := new(models.Permission)
	err := r.db.NewSelect().
		Model(perm).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("permission %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return perm, nil
}

// List returns all permissions ordered by code
func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	if err := r.db.NewSelect().Model(&perms).Order("code ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// ListRoleGrants returns the permissions granted to any of roleIDs.
// Inactive permissions are included; callers decide what to do with them.
func (r *BunPermissionRepository) ListRoleGrants(ctx context.Context, roleIDs []string) ([]models.RolePermission, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var grants []models.RolePermission
	err := r.db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("rp.role_id IN (?)", bun.In(roleIDs)).
		Order("rp.created_at ASC", "rp.permission_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list role permission grants: %w", err)
	}
	return grants, nil
}

// ListUserGrants returns the permissions granted directly to userID
func (r *BunPermissionRepository) ListUserGrants(ctx context.Context, userID string) ([]models.UserPermission, error) {
	var grants []models.UserPermission
	err := r.db.NewSelect().
		Model(&grants).
		Relation("Permission").
		Where("uperm.user_id = ?", userID).
		Order("uperm.created_at ASC", "uperm.permission_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user permission grants: %w", err)
	}
	return grants, nil
}

// GrantToRole grants a permission to a role. Re-granting is a no-op.
func (r *BunPermissionRepository) GrantToRole(ctx context.Context, roleID, permissionID string) error {
	_, err := r.db.NewInsert().
		Model(&models.RolePermission{RoleID: roleID, PermissionID: permissionID}).
		On("CONFLICT (role_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant permission to role: %w", err)
	}
	return nil
}

// GrantToUser grants a permission directly to a user. Re-granting is a no-op.
func (r *BunPermissionRepository) GrantToUser(ctx context.Context, userID, permissionID string, grantedBy *string) error {
	_, err := r.db.NewInsert().
		Model(&models.UserPermission{UserID: userID, PermissionID: permissionID, GrantedBy: grantedBy}).
		On("CONFLICT (user_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant permission to user: %w", err)
	}
	return nil
}

// RevokeFromUser removes a direct user grant
func (r *BunPermissionRepository) RevokeFromUser(ctx context.Context, userID, permissionID string) error {
	res, err := r.db.NewDelete().
		Model((*models.UserPermission)(nil)).
		Where("user_id = ?", userID).
		Where("permission_id = ?", permissionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke user permission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user permission %s/%s: %w", userID, permissionID, ErrNotFound)
	}
	return nil
}
