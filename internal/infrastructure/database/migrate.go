package database

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies every pending embedded migration for db's dialect.
func Migrate(ctx context.Context, db *DB) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(db.Driver))
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	var driver migratedb.Driver
	switch db.Driver {
	case DriverPostgres:
		conn, err := db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire migration connection: %w", err)
		}
		defer conn.Close()
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			return fmt.Errorf("failed to create postgres migration driver: %w", err)
		}
	case DriverSQLite:
		// The sqlite driver closes the pool on Close, so it is never closed here.
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("failed to create sqlite migration driver: %w", err)
		}
	default:
		return fmt.Errorf("unsupported database driver %q", db.Driver)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(db.Driver), driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}
