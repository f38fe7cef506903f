package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate counters for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	row := db.conn.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(autopilot_enabled), 0) FROM accounts`)
	if err := row.Scan(&s.TotalAccounts, &s.AutoPilotEnabled); err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`SELECT status, COUNT(*) FROM post_records GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case StatusPosted:
			s.PostedRecords = count
		case StatusSkipped:
			s.SkippedRecords = count
		case StatusFailed:
			s.FailedRecords = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM community_policies`).Scan(&s.CachedPolicies); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*), COALESCE(MAX(started_at), '')
		FROM account_runs`).Scan(&s.TotalRuns, &s.LastRunStarted); err != nil {
		return nil, err
	}

	return s, nil
}
