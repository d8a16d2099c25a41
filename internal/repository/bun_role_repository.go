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

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db *bun.DB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db *bun.DB) RoleRepository {
	return &BunRoleRepository{db: db}
}

// Create inserts a new role
func (r *BunRoleRepository) Create(ctx context.Context, role *models.Role) error {
	if role.ID == "" {
		role.ID = bunx.NewUUIDv7()
	}
	if _, err := r.db.NewInsert().Model(role).Exec(ctx); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// GetByCode retrieves a role by its code
func (r *BunRoleRepository) GetByCode(ctx context.Context, code string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// List returns all roles ordered by code
func (r *BunRoleRepository) List(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	if err := r.db.NewSelect().Model(&roles).Order("code ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ListAssignments returns the user's role assignments with their roles joined
func (r *BunRoleRepository) ListAssignments(ctx context.Context, userID string) ([]models.UserRole, error) {
	var assignments []models.UserRole
	err := r.db.NewSelect().
		Model(&assignments).
		Relation("Role").
		Where("ur.user_id = ?", userID).
		Order("ur.assigned_at ASC", "ur.role_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	return assignments, nil
}

// Assign gives a role to a user. Re-assigning is a no-op.
func (r *BunRoleRepository) Assign(ctx context.Context, userID, roleID string, assignedBy *string) error {
	_, err := r.db.NewInsert().
		Model(&models.UserRole{UserID: userID, RoleID: roleID, AssignedBy: assignedBy}).
		On("CONFLICT (user_id, role_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// Unassign removes a role from a user
func (r *BunRoleRepository) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := r.db.NewDelete().
		Model((*models.UserRole)(nil)).
		Where("user_id = ?", userID).
		Where("role_id = ?", roleID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("unassign role: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("role assignment %s/%s: %w", userID, roleID, ErrNotFound)
	}
	return nil
}
