package migrations

import (
	"context"
	"fmt"

	"github.com/mappa-gov/portal-iam/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20261001000001, down_20261001000001)
}

type tableSpec struct {
	name        string
	model       any
	foreignKeys []string
	indexes     []string
}

var iamTables = []tableSpec{
	{
		name:  "departments",
		model: (*models.Department)(nil),
		foreignKeys: []string{
			`("parent_id") REFERENCES "departments" ("id") ON DELETE SET NULL`,
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_departments_path ON departments(path)`,
		},
	},
	{
		name:  "users",
		model: (*models.User)(nil),
		foreignKeys: []string{
			`("department_id") REFERENCES "departments" ("id") ON DELETE SET NULL`,
		},
		indexes: []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		},
	},
	{
		name:  "user_departments",
		model: (*models.UserDepartment)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
			`("department_id") REFERENCES "departments" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:  "roles",
		model: (*models.Role)(nil),
	},
	{
		name:  "permissions",
		model: (*models.Permission)(nil),
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_permissions_module ON permissions(module)`,
		},
	},
	{
		name:  "user_roles",
		model: (*models.UserRole)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
			`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
		},
		indexes: []string{
			`CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id)`,
		},
	},
	{
		name:  "role_permissions",
		model: (*models.RolePermission)(nil),
		foreignKeys: []string{
			`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`,
			`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`,
		},
	},
	{
		name:  "user_permissions",
		model: (*models.UserPermission)(nil),
		foreignKeys: []string{
			`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`,
			`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`,
		},
	},
}

// up_20261001000001 creates the user, department, role and permission tables.
func up_20261001000001(ctx context.Context, db *bun.DB) error {
	for _, table := range iamTables {
		fmt.Printf(" [up] creating %s table...", table.name)

		q := db.NewCreateTable().
			Model(table.model).
			IfNotExists()
		for _, fk := range table.foreignKeys {
			q = q.ForeignKey(fk)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}

		for _, idx := range table.indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return fmt.Errorf("failed to create index on %s: %w", table.name, err)
			}
		}
		fmt.Println(" OK")
	}
	return nil
}

// down_20261001000001 drops the tables in reverse dependency order.
func down_20261001000001(ctx context.Context, db *bun.DB) error {
	for i := len(iamTables) - 1; i >= 0; i-- {
		table := iamTables[i]
		fmt.Printf(" [down] dropping %s table...", table.name)
		if _, err := db.NewDropTable().Model(table.model).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table.name, err)
		}
		fmt.Println(" OK")
	}
	return nil
}
