package iam

import (
	"maps"
	"slices"
	"strings"
)

// Principal is the authenticated session as reported by the identity provider.
type Principal struct {
	AuthUID string `json:"authUid"`
	Email   string `json:"email,omitempty"`
}

// PermissionMeta describes a permission code. It is only available when
// permissions were resolved through the live joins.
type PermissionMeta struct {
	Category string `json:"category,omitempty"`
	Module   string `json:"module,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
}

// Identity is the resolved access profile of a principal. List fields hold
// unique values in resolution order.
type Identity struct {
	AuthUID         string                    `json:"authUid"`
	UserID          string                    `json:"userId"`
	Email           string                    `json:"email,omitempty"`
	RoleIDs         []string                  `json:"roleIds"`
	RoleCodes       []string                  `json:"roleCodes"`
	PermissionIDs   []string                  `json:"permissionIds"`
	PermissionCodes []string                  `json:"permissionCodes"`
	PermissionMeta  map[string]PermissionMeta `json:"permissionMetaMap,omitempty"`
	PrimaryRoleCode string                    `json:"primaryRoleCode,omitempty"`
	IsSuperAdmin    bool                      `json:"isSuperAdmin"`
	IsAdmin         bool                      `json:"isAdmin"`
	DepartmentID    *string                   `json:"departmentId,omitempty"`
	DepartmentPath  *string                   `json:"departmentPath,omitempty"`
	DepartmentLevel *int                      `json:"departmentLevel,omitempty"`
}

// Clone returns a deep copy so cached identities are never shared with callers.
func (id *Identity) Clone() *Identity {
	if id == nil {
		return nil
	}
	c := *id
	c.RoleIDs = slices.Clone(id.RoleIDs)
	c.RoleCodes = slices.Clone(id.RoleCodes)
	c.PermissionIDs = slices.Clone(id.PermissionIDs)
	c.PermissionCodes = slices.Clone(id.PermissionCodes)
	if id.PermissionMeta != nil {
		c.PermissionMeta = maps.Clone(id.PermissionMeta)
	}
	c.DepartmentID = clonePtr(id.DepartmentID)
	c.DepartmentPath = clonePtr(id.DepartmentPath)
	c.DepartmentLevel = clonePtr(id.DepartmentLevel)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// RoleSet is the result of role aggregation.
type RoleSet struct {
	RoleIDs   []string `json:"roleIds"`
	RoleCodes []string `json:"roleCodes"`
}

// PermissionSet is the result of permission aggregation.
type PermissionSet struct {
	PermissionIDs   []string                  `json:"permissionIds"`
	PermissionCodes []string                  `json:"permissionCodes"`
	PermissionMeta  map[string]PermissionMeta `json:"permissionMetaMap,omitempty"`
}

// MergePermissions unions two permission sets. Metadata is merged
// last-write-wins: entries from later overwrite entries from earlier.
func MergePermissions(earlier, later PermissionSet) PermissionSet {
	var ids, codes orderedSet
	ids.add(earlier.PermissionIDs...)
	ids.add(later.PermissionIDs...)
	codes.add(earlier.PermissionCodes...)
	codes.add(later.PermissionCodes...)

	var meta map[string]PermissionMeta
	if len(earlier.PermissionMeta)+len(later.PermissionMeta) > 0 {
		meta = make(map[string]PermissionMeta, len(earlier.PermissionMeta)+len(later.PermissionMeta))
		maps.Copy(meta, earlier.PermissionMeta)
		maps.Copy(meta, later.PermissionMeta)
	}

	return PermissionSet{
		PermissionIDs:   ids.list(),
		PermissionCodes: codes.list(),
		PermissionMeta:  meta,
	}
}

// DefaultRolePriority decides the primary role when the preferred code is not
// among the user's roles.
var DefaultRolePriority = []string{"super-admin", "admin"}

// PickPrimaryRole chooses the role shown as the user's badge: preferred if the
// user holds it, then the first code matching priority (case-insensitive),
// then the first code. It returns "" when codes is empty.
func PickPrimaryRole(codes []string, preferred string, priority []string) string {
	if len(codes) == 0 {
		return ""
	}
	if preferred = strings.TrimSpace(preferred); preferred != "" {
		for _, c := range codes {
			if strings.EqualFold(c, preferred) {
				return c
			}
		}
	}
	for _, p := range priority {
		for _, c := range codes {
			if strings.EqualFold(c, p) {
				return c
			}
		}
	}
	return codes[0]
}

// hasCodeFold reports whether codes contains want, ignoring case.
func hasCodeFold(codes []string, want string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}

// orderedSet collects trimmed, non-empty strings without duplicates,
// remembering insertion order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if s.seen == nil {
			s.seen = make(map[string]struct{})
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) list() []string {
	if len(s.items) == 0 {
		return []string{}
	}
	return slices.Clone(s.items)
}
