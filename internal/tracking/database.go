// Package tracking persists a ledger of playback sessions: when each
// session started, the errors and phase transitions it saw, and periodic
// progress samples. The ledger backs resume-from-history and post-hoc
// inspection of playback behavior.
package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens (creating if needed) the ledger database at dbPath and
// ensures the schema exists. Use ":memory:" for tests.
func NewDatabase(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per playback session
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT    PRIMARY KEY,
    url        TEXT    NOT NULL,
    title      TEXT,
    started_at INTEGER NOT NULL
);

-- Errors and phase transitions within a session
CREATE TABLE IF NOT EXISTS session_events (
    id         INTEGER PRIMARY KEY,
    session_id TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    timestamp  INTEGER NOT NULL,
    kind       TEXT    NOT NULL,
    detail     TEXT
);

-- Throttled progress samples
CREATE TABLE IF NOT EXISTS progress_samples (
    session_id  TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    timestamp   INTEGER NOT NULL,
    position_ms INTEGER NOT NULL,
    state       TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_url ON sessions(url, started_at);
CREATE INDEX IF NOT EXISTS idx_events_session ON session_events(session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_progress_session ON progress_samples(session_id, timestamp);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LastPosition returns the most recent recorded position for a resource
// across all its sessions, and whether any was found.
func LastPosition(db *sql.DB, url string) (int64, bool, error) {
	row := db.QueryRow(`
		SELECT p.position_ms
		FROM progress_samples p
		JOIN sessions s ON s.id = p.session_id
		WHERE s.url = ?
		ORDER BY p.timestamp DESC, p.position_ms DESC
		LIMIT 1`, url)

	var positionMS int64
	err := row.Scan(&positionMS)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query last position: %w", err)
	}
	return positionMS, true, nil
}
