package api

import (
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/block"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/player"
	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/session"
)

// CreateNoteRequest is the request body for creating a note. When markup is
// present the note is seeded from it; otherwise the note starts empty.
type CreateNoteRequest struct {
	ID     string `json:"id" example:"meetings/standup" validate:"required"`
	Markup string `json:"markup,omitempty" example:"# Standup\nNotes body"`
}

// RenameNoteRequest is the request body for moving a note to a new id.
type RenameNoteRequest struct {
	ID    string `json:"id" example:"meetings/standup" validate:"required"`
	NewID string `json:"new_id" example:"meetings/standup-aug" validate:"required"`
}

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes" validate:"required"`
	Total int                   `json:"total" example:"42" validate:"required"`
}

// TimelineResponse wraps a note's chronological reference entries.
type TimelineResponse struct {
	Entries []models.TimelineEntry `json:"entries" validate:"required"`
}

// RunDTO is one inline span of text; format is the same bit set the
// snapshot format uses (1 bold, 2 italic, 4 code, 8 strike).
type RunDTO struct {
	Text   string `json:"text" example:"decide on rollout" validate:"required"`
	Format int    `json:"format,omitempty" example:"1"`
}

// AudioPayloadDTO anchors a block to a moment inside a recording.
type AudioPayloadDTO struct {
	RecordingID   string `json:"recording_id" example:"01J8ZY..." validate:"required"`
	Source        string `json:"source" example:"recordings/01J8ZY....wav" validate:"required"`
	StartOffsetMs int64  `json:"start_offset_ms" example:"93000"`
}

// RefPayloadDTO points at a block in this or another note.
type RefPayloadDTO struct {
	TargetBlockID string `json:"target_block_id" validate:"required"`
	TargetNoteID  string `json:"target_note_id,omitempty"`
	Preview       string `json:"preview,omitempty"`
}

// BacklinkPayloadDTO points back at a referencing note.
type BacklinkPayloadDTO struct {
	TargetNoteID string `json:"target_note_id" validate:"required"`
	TargetTitle  string `json:"target_title,omitempty"`
}

// BlockDTO is the API representation of a single block. Field names match
// the snapshot format. On input, text is a convenience for a single plain
// run; id and children are output-only.
type BlockDTO struct {
	ID       string              `json:"id,omitempty"`
	Kind     string              `json:"kind" example:"paragraph" validate:"required"`
	Children []string            `json:"children,omitempty"`
	Level    int                 `json:"level,omitempty" example:"2"`
	Marker   string              `json:"marker,omitempty" example:"-"`
	Language string              `json:"language,omitempty" example:"go"`
	Href     string              `json:"href,omitempty"`
	Text     string              `json:"text,omitempty" example:"decide on rollout"`
	Runs     []RunDTO            `json:"runs,omitempty"`
	Audio    *AudioPayloadDTO    `json:"audio,omitempty"`
	Ref      *RefPayloadDTO      `json:"ref,omitempty"`
	Backlink *BacklinkPayloadDTO `json:"backlink,omitempty"`
}

// toBlock converts the DTO into a domain block with a fresh id.
func (d BlockDTO) toBlock() (block.Block, error) {
	kind, ok := block.KindFromString(d.Kind)
	if !ok || kind == block.KindRoot {
		return block.Block{}, fmt.Errorf("unknown block kind %q", d.Kind)
	}
	b := block.New(kind)
	b.Level = d.Level
	if d.Marker != "" {
		b.Marker = d.Marker[0]
	}
	b.Language = d.Language
	b.Href = d.Href
	for _, r := range d.Runs {
		b.Runs = append(b.Runs, block.Styled(r.Text, block.Format(r.Format)))
	}
	if len(b.Runs) == 0 && d.Text != "" {
		b.Runs = []block.Run{block.Text(d.Text)}
	}
	if d.Audio != nil {
		b.Audio = &block.AudioPayload{
			RecordingID:   d.Audio.RecordingID,
			Source:        d.Audio.Source,
			StartOffsetMs: d.Audio.StartOffsetMs,
		}
	}
	if d.Ref != nil {
		b.Ref = &block.RefPayload{
			TargetBlockID: d.Ref.TargetBlockID,
			TargetNoteID:  d.Ref.TargetNoteID,
			Preview:       d.Ref.Preview,
		}
	}
	if d.Backlink != nil {
		b.Backlink = &block.BacklinkPayload{
			TargetNoteID: d.Backlink.TargetNoteID,
			TargetTitle:  d.Backlink.TargetTitle,
		}
	}
	return b, nil
}

func runsFromDTO(runs []RunDTO) []block.Run {
	out := make([]block.Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, block.Styled(r.Text, block.Format(r.Format)))
	}
	return out
}

func blockToDTO(b block.Block) BlockDTO {
	d := BlockDTO{
		ID:       b.ID,
		Kind:     b.Kind.String(),
		Level:    b.Level,
		Language: b.Language,
		Href:     b.Href,
	}
	if b.Marker != 0 {
		d.Marker = string(b.Marker)
	}
	for _, r := range b.Runs {
		d.Runs = append(d.Runs, RunDTO{Text: r.Text, Format: int(r.Format)})
	}
	if b.Audio != nil {
		d.Audio = &AudioPayloadDTO{
			RecordingID:   b.Audio.RecordingID,
			Source:        b.Audio.Source,
			StartOffsetMs: b.Audio.StartOffsetMs,
		}
	}
	if b.Ref != nil {
		d.Ref = &RefPayloadDTO{
			TargetBlockID: b.Ref.TargetBlockID,
			TargetNoteID:  b.Ref.TargetNoteID,
			Preview:       b.Ref.Preview,
		}
	}
	if b.Backlink != nil {
		d.Backlink = &BacklinkPayloadDTO{
			TargetNoteID: b.Backlink.TargetNoteID,
			TargetTitle:  b.Backlink.TargetTitle,
		}
	}
	return d
}

// CreateBlockRequest is the request body for inserting a block. A nil index
// appends to the end of the parent's children.
type CreateBlockRequest struct {
	ParentID string   `json:"parent_id" validate:"required"`
	Index    *int     `json:"index,omitempty" example:"0"`
	Block    BlockDTO `json:"block" validate:"required"`
}

// UpdateBlockRequest is the request body for replacing a block's runs.
type UpdateBlockRequest struct {
	BlockID string   `json:"block_id" validate:"required"`
	Runs    []RunDTO `json:"runs" validate:"required"`
}

// MoveBlockRequest is the request body for reparenting a block. A nil index
// appends to the end of the new parent's children.
type MoveBlockRequest struct {
	BlockID  string `json:"block_id" validate:"required"`
	ParentID string `json:"parent_id" validate:"required"`
	Index    *int   `json:"index,omitempty" example:"1"`
}

// RecordingDTO is the API representation of a stored recording.
type RecordingDTO struct {
	ID         string    `json:"id" example:"01J8ZY..." validate:"required"`
	NoteID     string    `json:"note_id" example:"meetings/standup" validate:"required"`
	FilePath   string    `json:"file_path" example:"recordings/01J8ZY....wav"`
	DurationMs *int64    `json:"duration_ms,omitempty" example:"5400000"`
	CreatedAt  time.Time `json:"created_at"`
}

func recordingToDTO(rec refstore.Recording) RecordingDTO {
	return RecordingDTO{
		ID:         rec.ID,
		NoteID:     rec.NoteID,
		FilePath:   rec.FilePath,
		DurationMs: rec.DurationMs,
		CreatedAt:  rec.CreatedAt,
	}
}

// RecordingListResponse wraps recording listings.
type RecordingListResponse struct {
	Recordings []RecordingDTO `json:"recordings" validate:"required"`
}

// ReferenceDTO is the API representation of a block-to-audio reference.
type ReferenceDTO struct {
	ID          string    `json:"id" validate:"required"`
	RecordingID string    `json:"recording_id" validate:"required"`
	BlockID     string    `json:"block_id" validate:"required"`
	OffsetMs    int64     `json:"offset_ms" example:"93000"`
	EndOffsetMs *int64    `json:"end_offset_ms,omitempty" example:"118000"`
	Origin      string    `json:"origin" example:"auto" validate:"required"`
	CreatedAt   time.Time `json:"created_at"`
}

func referenceToDTO(ref refstore.Reference) ReferenceDTO {
	return ReferenceDTO{
		ID:          ref.ID,
		RecordingID: ref.RecordingID,
		BlockID:     ref.BlockID,
		OffsetMs:    ref.OffsetMs,
		EndOffsetMs: ref.EndOffsetMs,
		Origin:      ref.Origin,
		CreatedAt:   ref.CreatedAt,
	}
}

// ReferenceListResponse wraps reference listings.
type ReferenceListResponse struct {
	References []ReferenceDTO `json:"references" validate:"required"`
}

// StartRecordingRequest is the request body for starting a capture session.
type StartRecordingRequest struct {
	NoteID string `json:"note_id" example:"meetings/standup" validate:"required"`
}

// AddReferenceRequest is the request body for a manual audio reference.
type AddReferenceRequest struct {
	BlockID     string `json:"block_id" validate:"required"`
	OffsetMs    int64  `json:"offset_ms" example:"93000"`
	EndOffsetMs *int64 `json:"end_offset_ms,omitempty" example:"118000"`
}

// SessionStatusResponse describes the recording session.
type SessionStatusResponse struct {
	Status      string     `json:"status" example:"active" validate:"required"`
	RecordingID string     `json:"recording_id,omitempty"`
	NoteID      string     `json:"note_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	OffsetMs    int64      `json:"offset_ms" example:"93000"`
}

func sessionToDTO(st session.State) SessionStatusResponse {
	resp := SessionStatusResponse{
		Status:      st.Status.String(),
		RecordingID: st.RecordingID,
		NoteID:      st.NoteID,
		OffsetMs:    st.Offset.Milliseconds(),
	}
	if !st.StartedAt.IsZero() {
		t := st.StartedAt
		resp.StartedAt = &t
	}
	return resp
}

// LoadClipRequest is the request body for loading a clip into the player.
// Either block_id or recording_id selects the segment; explicit start_ms
// and end_ms override the resolved bounds.
type LoadClipRequest struct {
	BlockID     string `json:"block_id,omitempty"`
	RecordingID string `json:"recording_id,omitempty"`
	StartMs     *int64 `json:"start_ms,omitempty" example:"93000"`
	EndMs       *int64 `json:"end_ms,omitempty" example:"118000"`
}

// SeekRequest is the request body for an absolute clip-relative seek.
type SeekRequest struct {
	PositionMs int64 `json:"position_ms" example:"5000" validate:"required"`
}

// SkipRequest is the request body for a relative jump. Negative delta_ms
// skips backward.
type SkipRequest struct {
	DeltaMs int64 `json:"delta_ms" example:"-10000" validate:"required"`
}

// PlayerStatusResponse describes the player transport. Positions are
// relative to the clip start.
type PlayerStatusResponse struct {
	State        string       `json:"state" example:"playing" validate:"required"`
	PositionMs   int64        `json:"position_ms" example:"4200"`
	ClipLengthMs int64        `json:"clip_length_ms" example:"25000"`
	Clip         *models.Clip `json:"clip,omitempty"`
	Error        string       `json:"error,omitempty"`
}

func playerToDTO(st player.Status, clip *models.Clip) PlayerStatusResponse {
	resp := PlayerStatusResponse{
		State:        st.State.String(),
		PositionMs:   st.Position.Milliseconds(),
		ClipLengthMs: st.ClipLength.Milliseconds(),
		Clip:         clip,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}
