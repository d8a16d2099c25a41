package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/uptrace/bun"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) UserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user. The caller supplies the ID, which is normally the
// identity provider's subject.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		return fmt.Errorf("create user: id is required")
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByEmail retrieves a user by email
func (r *BunUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", email)
}

func (r *BunUserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Column("id", "email", "department_id").
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s=%s: %w", column, value, ErrNotFound)
		}
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return user, nil
}

// List returns all users ordered by email
func (r *BunUserRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.NewSelect().Model(&users).Order("email ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}
