package iam

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mappa-gov/portal-iam/internal/db/models"
)

func TestResolveDepartment(t *testing.T) {
	hanoi := &models.Department{ID: "dep-9", Code: "hn", Name: "Hanoi", Path: strPtr("root.hanoi"), Level: intPtr(2)}
	danang := &models.Department{ID: "dep-5", Code: "dn", Name: "Da Nang", Path: strPtr("root.danang"), Level: intPtr(1)}

	tests := []struct {
		name       string
		profile    *models.UserProfile
		user       *models.User
		membership *models.UserDepartment
		failLookup string
		wantID     *string
		wantPath   *string
		wantLevel  *int
		wantByID   int
		wantMember int
	}{
		{
			name: "profile supplies everything",
			profile: &models.UserProfile{
				UserID: "u", DepartmentID: strPtr("dep-1"), DepartmentPath: strPtr("root.a"),
				DepartmentLevel: models.LooseInt{Int: 1, Valid: true},
			},
			wantID: strPtr("dep-1"), wantPath: strPtr("root.a"), wantLevel: intPtr(1),
		},
		{
			name:    "profile id fills path and level from department",
			profile: &models.UserProfile{UserID: "u", DepartmentID: strPtr("dep-9")},
			wantID:  strPtr("dep-9"), wantPath: strPtr("root.hanoi"), wantLevel: intPtr(2),
			wantByID: 1,
		},
		{
			name: "unparseable profile level is looked up",
			profile: &models.UserProfile{
				UserID: "u", DepartmentID: strPtr("dep-9"), DepartmentPath: strPtr("root.custom"),
				DepartmentLevel: models.LooseInt{},
			},
			wantID: strPtr("dep-9"), wantPath: strPtr("root.custom"), wantLevel: intPtr(2),
			wantByID: 1,
		},
		{
			name:     "raw user id",
			user:     &models.User{ID: "u", DepartmentID: strPtr("dep-9")},
			wantID:   strPtr("dep-9"), wantPath: strPtr("root.hanoi"), wantLevel: intPtr(2),
			wantByID: 1,
		},
		{
			name:       "membership when no id is known",
			user:       &models.User{ID: "u"},
			membership: &models.UserDepartment{UserID: "u", DepartmentID: "dep-5", Department: danang},
			wantID:     strPtr("dep-5"), wantPath: strPtr("root.danang"), wantLevel: intPtr(1),
			wantMember: 1,
		},
		{
			name:       "membership fills only what is missing",
			profile:    &models.UserProfile{UserID: "u", DepartmentID: strPtr("dep-404")},
			membership: &models.UserDepartment{UserID: "u", DepartmentID: "dep-5", Department: danang},
			wantID:     strPtr("dep-404"), wantPath: strPtr("root.danang"), wantLevel: intPtr(1),
			wantByID:   1, wantMember: 1,
		},
		{
			name:       "membership without joined department",
			membership: &models.UserDepartment{UserID: "u", DepartmentID: "dep-7"},
			wantID:     strPtr("dep-7"),
			wantMember: 1,
		},
		{
			name:       "failed department lookup falls through to membership",
			user:       &models.User{ID: "u", DepartmentID: strPtr("dep-9")},
			membership: &models.UserDepartment{UserID: "u", DepartmentID: "dep-5", Department: danang},
			failLookup: callDepartmentByID,
			wantID:     strPtr("dep-9"), wantPath: strPtr("root.danang"), wantLevel: intPtr(1),
			wantByID:   1, wantMember: 1,
		},
		{
			name:       "nothing anywhere",
			failLookup: callDepartmentMember,
			wantMember: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.departments.departments[hanoi.ID] = hanoi
			f.departments.departments[danang.ID] = danang
			if tc.membership != nil {
				f.departments.memberships["u"] = tc.membership
			}
			if tc.failLookup != "" {
				f.calls.fail(tc.failLookup, errors.New("boom"))
			}
			r := f.resolver(t, ResolverConfig{})

			got := r.resolveDepartment(context.Background(), "u", tc.profile, tc.user)
			assert.Equal(t, tc.wantID, got.ID)
			assert.Equal(t, tc.wantPath, got.Path)
			assert.Equal(t, tc.wantLevel, got.Level)
			assert.Equal(t, tc.wantByID, f.calls.count(callDepartmentByID))
			assert.Equal(t, tc.wantMember, f.calls.count(callDepartmentMember))
		})
	}
}

func TestResolveDepartment_BlankIDsAreUnknown(t *testing.T) {
	f := newFixture()
	r := f.resolver(t, ResolverConfig{})

	got := r.resolveDepartment(context.Background(), "u", &models.UserProfile{UserID: "u", DepartmentID: strPtr("  ")}, nil)
	require.Nil(t, got.ID)
	assert.Zero(t, f.calls.count(callDepartmentByID))
	assert.Equal(t, 1, f.calls.count(callDepartmentMember))
}
