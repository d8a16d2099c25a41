package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/uptrace/bun"
)

// BunProfileRepository implements ProfileRepository using Bun ORM
type BunProfileRepository struct {
	db *bun.DB
}

// NewBunProfileRepository creates a new Bun-based profile repository
func NewBunProfileRepository(db *bun.DB) ProfileRepository {
	return &BunProfileRepository{db: db}
}

// GetByUserID retrieves the profile whose user_id matches
func (r *BunProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.UserProfile, error) {
	return r.getBy(ctx, "user_id", userID)
}

// GetByEmail retrieves the profile whose email matches
func (r *BunProfileRepository) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	return r.getBy(ctx, "email", email)
}

func (r *BunProfileRepository) getBy(ctx context.Context, column, value string) (*models.UserProfile, error) {
	profile := new(models.UserProfile)
	err := r.db.NewSelect().
		Model(profile).
		Where("? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s=%s: %w", column, value, ErrNotFound)
		}
		return nil, fmt.Errorf("get profile by %s: %w", column, err)
	}
	return profile, nil
}
