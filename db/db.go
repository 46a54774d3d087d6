package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS roads (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	district TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	mode TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS devices (
	road_id INTEGER NOT NULL REFERENCES roads(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	device_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL,
	direction_from TEXT NOT NULL DEFAULT '',
	direction_to TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (road_id, position)
);

CREATE TABLE IF NOT EXISTS snapshot (
	id INTEGER PRIMARY KEY CHECK(id=1),
	saved_at TEXT NOT NULL
);
`

// Open opens the registry snapshot at path, creating the file and schema when missing.
// ":memory:" gives a private in-memory snapshot.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Debug().Str("path", path).Msg("Registry snapshot opened")
	return conn, nil
}
