// Package models defines the domain types for Ansuz.
package models

import (
	"time"

	"github.com/starford/ansuz/internal/block"
)

// Note is a fully loaded block document.
type Note struct {
	ID        string      `json:"id"`
	Title     string      `json:"title,omitempty"`
	Checksum  string      `json:"checksum"`
	UpdatedAt time.Time   `json:"updated_at"`
	Tree      *block.Tree `json:"-"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TimelineEntry pairs a block with a moment in one of the note's recordings.
type TimelineEntry struct {
	BlockID     string `json:"block_id"`
	Kind        string `json:"kind"`
	Text        string `json:"text,omitempty"`
	RecordingID string `json:"recording_id"`
	OffsetMs    int64  `json:"offset_ms"`
	EndOffsetMs *int64 `json:"end_offset_ms,omitempty"`
	Origin      string `json:"origin"`
	Orphaned    bool   `json:"orphaned,omitempty"`
}

// Clip is a resolved playable segment of a recording.
type Clip struct {
	RecordingID string `json:"recording_id"`
	FilePath    string `json:"file_path"`
	StartMs     int64  `json:"start_ms"`
	EndMs       int64  `json:"end_ms"` // 0 means play to the end of the file
}
