// Package refstore provides SQLite-backed persistence for recordings and the
// audio references that anchor blocks to moments within them.
package refstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS recordings (
	id          TEXT PRIMARY KEY,
	note_id     TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	duration_ms INTEGER,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_recordings_note ON recordings(note_id);

CREATE TABLE IF NOT EXISTS audio_refs (
	id            TEXT PRIMARY KEY,
	recording_id  TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
	block_id      TEXT NOT NULL,
	offset_ms     INTEGER NOT NULL,
	end_offset_ms INTEGER,
	origin        TEXT NOT NULL DEFAULT 'auto' CHECK (origin IN ('auto', 'manual')),
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_refs_auto_once
	ON audio_refs(recording_id, block_id) WHERE origin = 'auto';
CREATE INDEX IF NOT EXISTS idx_refs_block ON audio_refs(block_id);
CREATE INDEX IF NOT EXISTS idx_refs_recording ON audio_refs(recording_id);
`

// DB wraps a sql.DB with reference-store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Foreign keys are enabled so deleting a recording drops its references.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("refstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("refstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("refstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
