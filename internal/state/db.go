// Package state provides persistent records of what provisioning did to the
// host: which rootfs trees exist, which mounts were created for them, and
// which bootstrap tarballs are in the cache.
// Uses pure-Go SQLite (modernc.org/sqlite), no cgo required.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite provisioning state database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the state database at the given path.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode so the destroy helper can read while a provision is writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	sdb := &DB{db: db}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return sdb, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS provisions (
			rootfs     TEXT PRIMARY KEY,
			mirror     TEXT NOT NULL,
			packages   TEXT NOT NULL DEFAULT '[]',
			state      TEXT NOT NULL DEFAULT 'provisioning',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS mounts (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			rootfs     TEXT NOT NULL,
			target     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS tarballs (
			url        TEXT PRIMARY KEY,
			digest     TEXT NOT NULL,
			fetched_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
	for _, s := range stmts {
		if _, err := d.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
