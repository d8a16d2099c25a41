package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000002, down_20261001000002)
}

const sqliteProfileView = `
CREATE VIEW IF NOT EXISTS user_profile_view AS
SELECT
	u.id AS user_id,
	u.email AS email,
	u.full_name AS full_name,
	u.primary_role_code AS primary_role_code,
	u.department_id AS department_id,
	d.path AS department_path,
	d.level AS department_level,
	(SELECT json_group_array(code) FROM (
		SELECT DISTINCT r.code AS code
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id
	)) AS role_codes,
	(SELECT json_group_array(code) FROM (
		SELECT DISTINCT p.code AS code
		FROM permissions p
		WHERE p.status = 1 AND (
			p.id IN (SELECT rp.permission_id FROM role_permissions rp
				JOIN user_roles ur ON ur.role_id = rp.role_id WHERE ur.user_id = u.id)
			OR p.id IN (SELECT up.permission_id FROM user_permissions up WHERE up.user_id = u.id)
		)
	)) AS permission_codes,
	EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id AND lower(r.code) = 'super-admin') AS is_super_admin,
	EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id AND lower(r.code) = 'admin') AS is_admin
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
`

const postgresProfileView = `
CREATE OR REPLACE VIEW user_profile_view AS
SELECT
	u.id AS user_id,
	u.email AS email,
	u.full_name AS full_name,
	u.primary_role_code AS primary_role_code,
	u.department_id AS department_id,
	d.path AS department_path,
	d.level AS department_level,
	COALESCE((SELECT json_agg(DISTINCT r.code)
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id), '[]'::json) AS role_codes,
	COALESCE((SELECT json_agg(DISTINCT p.code)
		FROM permissions p
		WHERE p.status = 1 AND (
			p.id IN (SELECT rp.permission_id FROM role_permissions rp
				JOIN user_roles ur ON ur.role_id = rp.role_id WHERE ur.user_id = u.id)
			OR p.id IN (SELECT up.permission_id FROM user_permissions up WHERE up.user_id = u.id)
		)), '[]'::json) AS permission_codes,
	EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id AND lower(r.code) = 'super-admin') AS is_super_admin,
	EXISTS (SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = u.id AND lower(r.code) = 'admin') AS is_admin
FROM users u
LEFT JOIN departments d ON d.id = u.department_id
`

// up_20261001000002 creates user_profile_view. JSON aggregation differs
// between dialects, so each gets its own definition.
func up_20261001000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] creating user_profile_view...")

	ddl := sqliteProfileView
	if IsPostgreSQL(db) {
		ddl = postgresProfileView
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create user_profile_view: %w", err)
	}

	fmt.Println(" OK")
	return nil
}

func down_20261001000002(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] dropping user_profile_view...")
	if _, err := db.ExecContext(ctx, `DROP VIEW IF EXISTS user_profile_view`); err != nil {
		return fmt.Errorf("failed to drop user_profile_view: %w", err)
	}
	fmt.Println(" OK")
	return nil
}
