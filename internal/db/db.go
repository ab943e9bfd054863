// Package db provides the SQLite connection and schema for nvxd.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Control ledger - append-only audit trail of control actions and poll failures.
	// A control id may appear twice (requested, then applied or failed).
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS control_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			device_id TEXT NOT NULL,
			control_id TEXT,
			property TEXT,
			value TEXT,
			error TEXT,
			payload TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_type_ts ON control_ledger(event_type, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_device_ts ON control_ledger(device_id, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create control_ledger table: %w", err)
	}

	// Partial index for per-property history of applied controls
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ledger_property_applied
		ON control_ledger(property, timestamp)
		WHERE property IS NOT NULL AND event_type = 'control_applied';
	`)
	if err != nil {
		return fmt.Errorf("failed to create idx_ledger_property_applied index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
