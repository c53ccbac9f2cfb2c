package refstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// Recording is one captured audio session attached to a note. DurationMs is
// nil while capture is still running.
type Recording struct {
	ID         string
	NoteID     string
	FilePath   string
	DurationMs *int64
	CreatedAt  time.Time
}

// PutRecording inserts a new recording row.
func (db *DB) PutRecording(rec Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.Exec(`
		INSERT INTO recordings (id, note_id, file_path, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.NoteID, rec.FilePath, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("refstore: put recording: %w", err)
	}
	return nil
}

// FinishRecording stores the final duration once capture has stopped.
func (db *DB) FinishRecording(id string, durationMs int64) error {
	res, err := db.conn.Exec(`UPDATE recordings SET duration_ms = ? WHERE id = ?`, durationMs, id)
	if err != nil {
		return fmt.Errorf("refstore: finish recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetRecording returns a recording by id.
func (db *DB) GetRecording(id string) (*Recording, error) {
	var rec Recording
	var dur sql.NullInt64
	err := db.conn.QueryRow(`
		SELECT id, note_id, file_path, duration_ms, created_at
		FROM recordings WHERE id = ?
	`, id).Scan(&rec.ID, &rec.NoteID, &rec.FilePath, &dur, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("refstore: get recording: %w", err)
	}
	if dur.Valid {
		rec.DurationMs = &dur.Int64
	}
	return &rec, nil
}

// ListRecordings returns all recordings for a note, oldest first.
func (db *DB) ListRecordings(noteID string) ([]Recording, error) {
	rows, err := db.conn.Query(`
		SELECT id, note_id, file_path, duration_ms, created_at
		FROM recordings WHERE note_id = ?
		ORDER BY created_at, id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("refstore: list recordings: %w", err)
	}
	defer rows.Close()

	var out []Recording
	for rows.Next() {
		var rec Recording
		var dur sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.NoteID, &rec.FilePath, &dur, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if dur.Valid {
			rec.DurationMs = &dur.Int64
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RenameNote re-homes every recording of a note to a new note id.
func (db *DB) RenameNote(oldID, newID string) error {
	if _, err := db.conn.Exec(`UPDATE recordings SET note_id = ? WHERE note_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("refstore: rename note: %w", err)
	}
	return nil
}

// DeleteRecording removes a recording; its references cascade with it.
func (db *DB) DeleteRecording(id string) error {
	res, err := db.conn.Exec(`DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("refstore: delete recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
