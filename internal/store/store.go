package store

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the embedded, single-writer relational store described in
// §4.A. All writes go through the one *sqlx.DB connection (capped at a
// single open connection) so that readers always observe a consistent
// snapshot without needing an explicit application-level lock.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if absent) the sqlite3 database at path and applies
// any pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	if path == ":memory:" {
		dsn = path
	}

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single-writer discipline (§5): one connection total, so sqlite's own
	// file lock never contends with itself across goroutines.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sqlx.DB, path string) error {
	srcDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: load migrations: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: migrate up for %s: %w", path, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sqlx.DB for components (e.g. the protocol
// directory rebuild path) that need ad hoc read queries beyond the typed
// accessors below.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
