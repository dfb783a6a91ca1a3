// Package sqlite implements repository.UserRepository on top of SQLite.
//
// SQLite is embedded: the whole database is one file next to the binary (or
// ":memory:" in tests), so a single-node deployment needs no database server.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB:   a connection pool (NOT a single connection!)
//   - sql.Row:  a single result row
//   - sql.Rows: multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// memoryPath is the DSN for a private in-memory database.
const memoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements repository.UserRepository.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/users.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Writers wait up to 5s for the lock instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// each start.
//
// AUTOINCREMENT (rather than a plain INTEGER PRIMARY KEY) makes SQLite keep
// the high-water mark in sqlite_sequence, so the id of a deleted row is never
// handed out again.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			email         TEXT    NOT NULL UNIQUE,
			hash_password TEXT    NOT NULL DEFAULT '',
			salt          TEXT    NOT NULL DEFAULT '',
			name          TEXT    NOT NULL DEFAULT '',
			address       TEXT,
			study_program TEXT    NOT NULL DEFAULT '',
			course        INTEGER NOT NULL DEFAULT 0,
			rating        REAL    NOT NULL DEFAULT 0,
			coins         INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
			ad_list       TEXT    NOT NULL DEFAULT '[]'
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// moderator arrived after the first schema; older files lack the column.
	if err := db.addColumnIfNotExists("users", "moderator",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding moderator to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Running it twice is a no-op.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
