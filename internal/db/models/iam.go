package models

import (
	"time"

	"github.com/uptrace/bun"
)

// UserProfile is a row of user_profile_view, the denormalized projection of a
// user with precomputed role and permission codes.
type UserProfile struct {
	bun.BaseModel `bun:"table:user_profile_view,alias:upv"`

	UserID          string   `bun:"user_id"`
	Email           *string  `bun:"email"`
	FullName        *string  `bun:"full_name"`
	RoleCodes       CodeList `bun:"role_codes"`
	PermissionCodes CodeList `bun:"permission_codes"`
	PrimaryRoleCode *string  `bun:"primary_role_code"`
	IsSuperAdmin    bool     `bun:"is_super_admin"`
	IsAdmin         bool     `bun:"is_admin"`
	DepartmentID    *string  `bun:"department_id"`
	DepartmentPath  *string  `bun:"department_path"`
	DepartmentLevel LooseInt `bun:"department_level"`
}

// User is the raw application user record. The profile view is derived from it
// and may lag behind freshly inserted rows.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID              string    `bun:"id,pk"`
	Email           string    `bun:"email,notnull,unique"`
	FullName        string    `bun:"full_name"`
	DepartmentID    *string   `bun:"department_id"`
	PrimaryRoleCode *string   `bun:"primary_role_code"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Department is an organizational unit. Path is a materialized path such as
// "root.hanoi.district1"; Level is its depth.
type Department struct {
	bun.BaseModel `bun:"table:departments,alias:d"`

	ID        string    `bun:"id,pk"`
	Code      string    `bun:"code,notnull,unique"`
	Name      string    `bun:"name,notnull"`
	ParentID  *string   `bun:"parent_id"`
	Path      *string   `bun:"path"`
	Level     *int      `bun:"level"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// UserDepartment links a user to a department.
type UserDepartment struct {
	bun.BaseModel `bun:"table:user_departments,alias:ud"`

	UserID       string    `bun:"user_id,pk"`
	DepartmentID string    `bun:"department_id,pk"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Department *Department `bun:"rel:belongs-to,join:department_id=id"`
}

// Role is a named bundle of permissions.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          string     `bun:"id,pk"`
	Code        string     `bun:"code,notnull,unique"`
	Name        string     `bun:"name,notnull"`
	Description string     `bun:"description"`
	Status      ActiveFlag `bun:"status,type:smallint,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// UserRole assigns a role to a user.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID     string    `bun:"user_id,pk"`
	RoleID     string    `bun:"role_id,pk"`
	AssignedBy *string   `bun:"assigned_by"`
	AssignedAt time.Time `bun:"assigned_at,nullzero,notnull,default:current_timestamp"`

	Role *Role `bun:"rel:belongs-to,join:role_id=id"`
}

// Permission is a grantable capability identified by a stable code such as
// "evidence.download".
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID        string     `bun:"id,pk"`
	Code      string     `bun:"code,notnull,unique"`
	Name      string     `bun:"name"`
	Category  *string    `bun:"category"`
	Module    *string    `bun:"module"`
	Resource  *string    `bun:"resource"`
	Action    *string    `bun:"action"`
	Status    ActiveFlag `bun:"status,type:smallint,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// RolePermission grants a permission to every holder of a role.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID       string    `bun:"role_id,pk"`
	PermissionID string    `bun:"permission_id,pk"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// UserPermission is a direct grant of a permission to a single user.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:uperm"`

	UserID       string    `bun:"user_id,pk"`
	PermissionID string    `bun:"permission_id,pk"`
	GrantedBy    *string   `bun:"granted_by"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`

	Permission *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}
