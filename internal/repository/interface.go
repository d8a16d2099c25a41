package repository

import (
	"context"
	"errors"

	"github.com/mappa-gov/portal-iam/internal/db/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ProfileRepository reads user_profile_view.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.UserProfile, error)
	GetByEmail(ctx context.Context, email string) (*models.UserProfile, error)
}

// UserRepository manages raw user records.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	// GetByID and GetByEmail return only id, email and department_id.
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// DepartmentRepository manages departments and user membership.
type DepartmentRepository interface {
	Create(ctx context.Context, dep *models.Department) error
	GetByID(ctx context.Context, id string) (*models.Department, error)
	// GetMembershipByUserID returns one membership row with its department joined.
	GetMembershipByUserID(ctx context.Context, userID string) (*models.UserDepartment, error)
	AddMember(ctx context.Context, userID, departmentID string) error
}

// RoleRepository manages roles and their assignment to users.
type RoleRepository interface {
	Create(ctx context.Context, role *models.Role) error
	GetByCode(ctx context.Context, code string) (*models.Role, error)
	List(ctx context.Context) ([]models.Role, error)
	// ListAssignments returns the user's role assignments with the role joined.
	// Roles are not filtered by status.
	ListAssignments(ctx context.Context, userID string) ([]models.UserRole, error)
	Assign(ctx context.Context, userID, roleID string, assignedBy *string) error
	Unassign(ctx context.Context, userID, roleID string) error
}

// PermissionRepository manages permissions and their grants.
type PermissionRepository interface {
	Create(ctx context.Context, perm *models.Permission) error
	GetByCode(ctx context.Context, code string) (*models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
	// ListRoleGrants returns role grants for roleIDs with the permission joined.
	ListRoleGrants(ctx context.Context, roleIDs []string) ([]models.RolePermission, error)
	// ListUserGrants returns direct grants for userID with the permission joined.
	ListUserGrants(ctx context.Context, userID string) ([]models.UserPermission, error)
	GrantToRole(ctx context.Context, roleID, permissionID string) error
	GrantToUser(ctx context.Context, userID, permissionID string, grantedBy *string) error
	RevokeFromUser(ctx context.Context, userID, permissionID string) error
}
