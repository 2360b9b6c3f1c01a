// Package dbtest opens migrated throwaway stores for tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"salesconsumer/internal/infrastructure/database"

	"github.com/stretchr/testify/require"
)

// NewSQLite returns a migrated SQLite store living in t.TempDir().
func NewSQLite(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.DBConfig{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "sales.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	return db
}

// NewPostgres returns a migrated Postgres store from TEST_POSTGRES_DSN, or
// skips the test when the variable is unset. Tables are truncated first.
func NewPostgres(t testing.TB) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	db, err := database.OpenDSN(ctx, database.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE opportunities, projects, outbox_messages`)
	require.NoError(t, err)
	return db
}
