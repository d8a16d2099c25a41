package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000003, down_20261001000003)
}

// referenceRoles are the portal's built-in roles.
var referenceRoles = []models.Role{
	{Code: "super-admin", Name: "Super administrator", Description: "Unrestricted access to every portal module"},
	{Code: "admin", Name: "Administrator", Description: "Manages users, roles and reference data"},
	{Code: "inspector", Name: "Inspector", Description: "Runs inspection rounds and handles evidence"},
	{Code: "viewer", Name: "Viewer", Description: "Read-only access to dashboards and records"},
}

// referencePermissions are "<module>.<action>" codes. Category groups them in
// the admin UI.
var referencePermissions = []struct {
	code     string
	category string
}{
	{"lead.view", "operations"},
	{"lead.create", "operations"},
	{"lead.assign", "operations"},
	{"risk.view", "analysis"},
	{"risk.score", "analysis"},
	{"inspection.view", "operations"},
	{"inspection.plan", "operations"},
	{"inspection.execute", "operations"},
	{"evidence.view", "custody"},
	{"evidence.upload", "custody"},
	{"evidence.download", "custody"},
	{"audit.view", "governance"},
	{"wallboard.view", "monitoring"},
	{"document.view", "records"},
	{"document.upload", "records"},
	{"iam.roles.view", "administration"},
	{"iam.roles.assign", "administration"},
	{"iam.permissions.view", "administration"},
	{"iam.permissions.grant", "administration"},
	{"iam.cache.clear", "administration"},
}

// referenceGrants maps role codes to permission code prefixes. "*" grants every
// reference permission.
var referenceGrants = map[string][]string{
	"super-admin": {"*"},
	"admin":       {"*"},
	"inspector": {
		"lead.view", "lead.assign", "risk.view",
		"inspection.view", "inspection.execute",
		"evidence.view", "evidence.upload", "evidence.download",
		"document.view", "document.upload",
	},
	"viewer": {
		"lead.view", "risk.view", "inspection.view",
		"wallboard.view", "document.view",
	},
}

// up_20261001000003 seeds reference roles, permissions and role grants.
func up_20261001000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding reference roles...")
	for _, role := range referenceRoles {
		role.ID = bunx.NewUUIDv7()
		role.Status = true
		if _, err := db.NewInsert().
			Model(&role).
			On("CONFLICT (code) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Code, err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding reference permissions...")
	allCodes := make([]string, 0, len(referencePermissions))
	for _, rp := range referencePermissions {
		module, action, _ := strings.Cut(rp.code, ".")
		resource := module
		if i := strings.LastIndex(rp.code, "."); i > 0 {
			resource = rp.code[:i]
			action = rp.code[i+1:]
		}
		category := rp.category
		perm := models.Permission{
			ID:       bunx.NewUUIDv7(),
			Code:     rp.code,
			Name:     rp.code,
			Category: &category,
			Module:   &module,
			Resource: &resource,
			Action:   &action,
			Status:   true,
		}
		if _, err := db.NewInsert().
			Model(&perm).
			On("CONFLICT (code) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", rp.code, err)
		}
		allCodes = append(allCodes, rp.code)
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding role grants...")
	for roleCode, codes := range referenceGrants {
		if len(codes) == 1 && codes[0] == "*" {
			codes = allCodes
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id FROM roles r, permissions p
			WHERE r.code = ? AND p.code IN (?)
			ON CONFLICT DO NOTHING`,
			roleCode, bun.In(codes),
		); err != nil {
			return fmt.Errorf("failed to seed grants for %s: %w", roleCode, err)
		}
	}
	fmt.Println(" OK")
	return nil
}

func down_20261001000003(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing reference data...")
	roleCodes := make([]string, 0, len(referenceRoles))
	for _, r := range referenceRoles {
		roleCodes = append(roleCodes, r.Code)
	}
	permCodes := make([]string, 0, len(referencePermissions))
	for _, p := range referencePermissions {
		permCodes = append(permCodes, p.code)
	}

	if _, err := db.NewDelete().
		Model((*models.Role)(nil)).
		Where("code IN (?)", bun.In(roleCodes)).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove reference roles: %w", err)
	}
	if _, err := db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("code IN (?)", bun.In(permCodes)).
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove reference permissions: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
