package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salesconsumer/internal/retry"

	"github.com/lib/pq"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) Valid() bool {
	return d == DriverPostgres || d == DriverSQLite
}

type DBConfig struct {
	Driver   Driver
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SQLitePath is the database file used when Driver is DriverSQLite.
	SQLitePath string
}

// DSN returns the driver-specific data source name.
func (c DBConfig) DSN() string {
	if c.Driver == DriverSQLite {
		return c.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_time_format=sqlite"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// DB is a connection pool tagged with the SQL dialect it speaks.
type DB struct {
	*sql.DB
	Driver Driver
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, cfg DBConfig) (*DB, error) {
	if !cfg.Driver.Valid() {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Driver == DriverSQLite {
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, errors.New("sqlite path is required")
		}
		cfg.SQLitePath = filepath.Clean(cfg.SQLitePath)
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
	}

	return OpenDSN(ctx, cfg.Driver, cfg.DSN())
}

// OpenDSN connects with an explicit data source name.
func OpenDSN(ctx context.Context, driver Driver, dsn string) (*DB, error) {
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		// A single writer avoids SQLITE_BUSY between pool connections.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return &DB{DB: db, Driver: driver}, nil
}

// Connect opens the store, retrying with exponential backoff while it is
// not yet reachable.
func Connect(ctx context.Context, cfg DBConfig, attempts int, delay time.Duration, logger *zap.Logger) (*DB, error) {
	var db *DB
	err := retry.Do(ctx, retry.Policy{MaxAttempts: attempts, BaseDelay: delay}, logger, func(ctx context.Context) error {
		var err error
		db, err = Open(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	return db, nil
}

// Rebind rewrites `?` placeholders into the dialect's bind syntax.
func Rebind(driver Driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err is a unique constraint violation
// raised by either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
