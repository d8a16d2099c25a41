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

// BunDepartmentRepository implements DepartmentRepository using Bun ORM
type BunDepartmentRepository struct {
	db *bun.DB
}

// NewBunDepartmentRepository creates a new Bun-based department repository
func NewBunDepartmentRepository(db *bun.DB) DepartmentRepository {
	return &BunDepartmentRepository{db: db}
}

// Create inserts a new department
func (r *BunDepartmentRepository) Create(ctx context.Context, dep *models.Department) error {
	if dep.ID == "" {
		dep.ID = bunx.NewUUIDv7()
	}
	if _, err := r.db.NewInsert().Model(dep).Exec(ctx); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// GetByID retrieves a department by ID
func (r *BunDepartmentRepository) GetByID(ctx context.Context, id string) (*models.Department, error) {
	dep := new(models.Department)
	err := r.db.NewSelect().
		Model(dep).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("department %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return dep, nil
}

// GetMembershipByUserID retrieves one department membership for a user
func (r *BunDepartmentRepository) GetMembershipByUserID(ctx context.Context, userID string) (*models.UserDepartment, error) {
	membership := new(models.UserDepartment)
	err := r.db.NewSelect().
		Model(membership).
		Relation("Department").
		Where("ud.user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("department membership for %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("get department membership: %w", err)
	}
	return membership, nil
}

// AddMember links a user to a department. Re-adding is a no-op.
func (r *BunDepartmentRepository) AddMember(ctx context.Context, userID, departmentID string) error {
	_, err := r.db.NewInsert().
		Model(&models.UserDepartment{UserID: userID, DepartmentID: departmentID}).
		On("CONFLICT (user_id, department_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("add department member: %w", err)
	}
	return nil
}
