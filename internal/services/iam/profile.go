package iam

import (
	"context"
	"strings"

	"github.com/mappa-gov/portal-iam/internal/db/models"
)

// resolveProfile reads the aggregated profile row by auth UID, falling back to
// the principal's email. Lookup failures count as "no profile".
func (r *Resolver) resolveProfile(ctx context.Context, authUID, email string) *models.UserProfile {
	if p := lookup(r, ctx, stepProfileByID, authUID, r.deps.Profiles.GetByUserID); p != nil {
		return p
	}
	if email = strings.TrimSpace(email); email == "" {
		return nil
	}
	return lookup(r, ctx, stepProfileByEmail, email, r.deps.Profiles.GetByEmail)
}

// resolveUserRow reads the raw user record when no profile row exists, first
// by auth UID and then by email.
func (r *Resolver) resolveUserRow(ctx context.Context, authUID, email string) *models.User {
	if u := lookup(r, ctx, stepUserByID, authUID, r.deps.Users.GetByID); u != nil {
		return u
	}
	if email = strings.TrimSpace(email); email == "" {
		return nil
	}
	return lookup(r, ctx, stepUserByEmail, email, r.deps.Users.GetByEmail)
}
