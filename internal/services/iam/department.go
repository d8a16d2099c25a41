package iam

import (
	"context"
	"strings"

	"github.com/mappa-gov/portal-iam/internal/db/models"
)

// Department is the resolved placement of a user in the organization tree.
// Any field may be unknown.
type Department struct {
	ID    *string
	Path  *string
	Level *int
}

func (d Department) complete() bool {
	return d.ID != nil && d.Path != nil && d.Level != nil
}

// fill copies the fields of dep that d does not have yet.
func (d *Department) fill(dep *models.Department) {
	if dep == nil {
		return
	}
	if d.ID == nil {
		d.ID = trimmedPtr(&dep.ID)
	}
	if d.Path == nil {
		d.Path = trimmedPtr(dep.Path)
	}
	if d.Level == nil {
		d.Level = clonePtr(dep.Level)
	}
}

// resolveDepartment walks the department sources in priority order: the
// profile row, the raw user row, the department record for a known id, and
// finally the user's membership. Later sources only fill fields that are still
// unknown.
func (r *Resolver) resolveDepartment(ctx context.Context, userID string, profile *models.UserProfile, user *models.User) Department {
	var d Department
	if profile != nil {
		d.ID = trimmedPtr(profile.DepartmentID)
		d.Path = trimmedPtr(profile.DepartmentPath)
		d.Level = profile.DepartmentLevel.Ptr()
	}
	if d.ID == nil && user != nil {
		d.ID = trimmedPtr(user.DepartmentID)
	}

	if d.ID != nil && (d.Path == nil || d.Level == nil) {
		d.fill(lookup(r, ctx, stepDepartment, *d.ID, r.deps.Departments.GetByID))
	}

	if !d.complete() {
		if m := lookup(r, ctx, stepDepartmentMembership, userID, r.deps.Departments.GetMembershipByUserID); m != nil {
			d.fill(m.Department)
			if d.ID == nil {
				d.ID = trimmedPtr(&m.DepartmentID)
			}
		}
	}
	return d
}

func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
