package refstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
)

// Origin values recorded on audio references.
const (
	OriginAuto   = "auto"
	OriginManual = "manual"
)

// Reference anchors a block to a moment within a recording. EndOffsetMs is
// nil for point references; manual segment references may set it.
type Reference struct {
	ID          string
	RecordingID string
	BlockID     string
	OffsetMs    int64
	EndOffsetMs *int64
	Origin      string
	CreatedAt   time.Time
}

// PutAutoReference stores a tagger-generated reference. A block already
// tagged within the same recording is left untouched.
func (db *DB) PutAutoReference(recordingID, blockID string, offsetMs int64) error {
	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO audio_refs (id, recording_id, block_id, offset_ms, origin, created_at)
		VALUES (?, ?, ?, ?, 'auto', ?)
	`, uuid.NewString(), recordingID, blockID, offsetMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("refstore: put auto reference: %w", err)
	}
	return nil
}

// PutManualReference stores a user-placed reference and returns the row.
// The offset must be non-negative and the end offset, when set, must lie
// after it.
func (db *DB) PutManualReference(recordingID, blockID string, offsetMs int64, endOffsetMs *int64) (*Reference, error) {
	if offsetMs < 0 {
		return nil, fmt.Errorf("refstore: negative offset %d", offsetMs)
	}
	if endOffsetMs != nil && *endOffsetMs <= offsetMs {
		return nil, fmt.Errorf("refstore: end offset %d not after start %d", *endOffsetMs, offsetMs)
	}
	ref := &Reference{
		ID:          uuid.NewString(),
		RecordingID: recordingID,
		BlockID:     blockID,
		OffsetMs:    offsetMs,
		EndOffsetMs: endOffsetMs,
		Origin:      OriginManual,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := db.conn.Exec(`
		INSERT INTO audio_refs (id, recording_id, block_id, offset_ms, end_offset_ms, origin, created_at)
		VALUES (?, ?, ?, ?, ?, 'manual', ?)
	`, ref.ID, ref.RecordingID, ref.BlockID, ref.OffsetMs, ref.EndOffsetMs, ref.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("refstore: put manual reference: %w", err)
	}
	return ref, nil
}

// GetReference returns a reference by id.
func (db *DB) GetReference(id string) (*Reference, error) {
	var ref Reference
	var end sql.NullInt64
	err := db.conn.QueryRow(`
		SELECT id, recording_id, block_id, offset_ms, end_offset_ms, origin, created_at
		FROM audio_refs WHERE id = ?
	`, id).Scan(&ref.ID, &ref.RecordingID, &ref.BlockID, &ref.OffsetMs, &end, &ref.Origin, &ref.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("refstore: get reference: %w", err)
	}
	if end.Valid {
		ref.EndOffsetMs = &end.Int64
	}
	return &ref, nil
}

// ListReferences returns all references within a recording, earliest first.
func (db *DB) ListReferences(recordingID string) ([]Reference, error) {
	rows, err := db.conn.Query(`
		SELECT id, recording_id, block_id, offset_ms, end_offset_ms, origin, created_at
		FROM audio_refs WHERE recording_id = ?
		ORDER BY offset_ms, created_at
	`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("refstore: list references: %w", err)
	}
	return collectRefs(rows)
}

// NoteReferences returns every reference attached to a note's recordings,
// grouped by recording in capture order.
func (db *DB) NoteReferences(noteID string) ([]Reference, error) {
	rows, err := db.conn.Query(`
		SELECT r.id, r.recording_id, r.block_id, r.offset_ms, r.end_offset_ms, r.origin, r.created_at
		FROM audio_refs r
		JOIN recordings rec ON rec.id = r.recording_id
		WHERE rec.note_id = ?
		ORDER BY rec.created_at, rec.id, r.offset_ms
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("refstore: note references: %w", err)
	}
	return collectRefs(rows)
}

// ReferencesForBlock returns all references pointing at a block, earliest
// recording first.
func (db *DB) ReferencesForBlock(blockID string) ([]Reference, error) {
	rows, err := db.conn.Query(`
		SELECT r.id, r.recording_id, r.block_id, r.offset_ms, r.end_offset_ms, r.origin, r.created_at
		FROM audio_refs r
		JOIN recordings rec ON rec.id = r.recording_id
		WHERE r.block_id = ?
		ORDER BY rec.created_at, r.offset_ms
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("refstore: references for block: %w", err)
	}
	return collectRefs(rows)
}

// DeleteReference removes one reference by id.
func (db *DB) DeleteReference(id string) error {
	res, err := db.conn.Exec(`DELETE FROM audio_refs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("refstore: delete reference: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteReferencesForBlock removes every reference pointing at a block.
// Used when the block itself is removed from its document.
func (db *DB) DeleteReferencesForBlock(blockID string) error {
	if _, err := db.conn.Exec(`DELETE FROM audio_refs WHERE block_id = ?`, blockID); err != nil {
		return fmt.Errorf("refstore: delete references for block: %w", err)
	}
	return nil
}

func collectRefs(rows *sql.Rows) ([]Reference, error) {
	defer rows.Close()
	var out []Reference
	for rows.Next() {
		var ref Reference
		var end sql.NullInt64
		if err := rows.Scan(&ref.ID, &ref.RecordingID, &ref.BlockID, &ref.OffsetMs, &end, &ref.Origin, &ref.CreatedAt); err != nil {
			return nil, err
		}
		if end.Valid {
			ref.EndOffsetMs = &end.Int64
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
