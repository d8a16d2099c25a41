package repository

import (
	"context"
	"testing"

	"github.com/mappa-gov/portal-iam/internal/db/bunx"
	"github.com/mappa-gov/portal-iam/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// setupTestDB returns a migrated in-memory SQLite database that is closed when
// the test finishes.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := bunx.NewDB(ctx, "file::memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	_, err = migrations.Migrate(ctx, db)
	require.NoError(t, err)
	return db
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
