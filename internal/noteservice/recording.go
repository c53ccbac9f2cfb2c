package noteservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/wav"
)

// PutAutoReference persists a tagger write and republishes it. The service
// passes itself to the tagger as its store so tags reach SSE clients.
func (s *Service) PutAutoReference(recordingID, blockID string, offsetMs int64) error {
	if err := s.refs.PutAutoReference(recordingID, blockID, offsetMs); err != nil {
		return err
	}
	if s.sink != nil {
		if rec, err := s.refs.GetRecording(recordingID); err == nil {
			s.sink.PublishTagged(rec.NoteID, blockID, recordingID, offsetMs)
		}
	}
	return nil
}

// StartRecording begins the process-wide recording session against a note.
func (s *Service) StartRecording(ctx context.Context, noteID string) (*refstore.Recording, error) {
	if _, err := s.GetNote(ctx, noteID); err != nil {
		return nil, err
	}

	rec, err := s.session.Start(ctx, noteID)
	if err != nil {
		return nil, err
	}
	row := refstore.Recording{
		ID:        rec.ID,
		NoteID:    noteID,
		FilePath:  rec.Path,
		CreatedAt: rec.StartedAt,
	}
	if err := s.refs.PutRecording(row); err != nil {
		// Without the row, tag writes would dangle. Abort the session.
		if _, stopErr := s.session.Stop(ctx); stopErr != nil {
			slog.Error("session abort failed", "recording", rec.ID, "error", stopErr.Error())
		}
		return nil, err
	}
	if s.sink != nil {
		s.sink.PublishSession("session.started", noteID, rec.ID)
	}
	return &row, nil
}

// StopRecording ends the active session and stores the final duration.
func (s *Service) StopRecording(ctx context.Context) (*refstore.Recording, error) {
	rec, err := s.session.Stop(ctx)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotRecording) && s.sink != nil {
			// Session state is already cleared; tell clients it ended even
			// though the capture engine reported a failure.
			s.sink.PublishSession("session.stopped", rec.NoteID, rec.ID)
		}
		return nil, err
	}

	if err := s.refs.FinishRecording(rec.ID, rec.Duration.Milliseconds()); err != nil {
		slog.Warn("finish recording failed", "recording", rec.ID, "error", err.Error())
	}
	if s.sink != nil {
		s.sink.PublishSession("session.stopped", rec.NoteID, rec.ID)
	}
	row, err := s.refs.GetRecording(rec.ID)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// SessionState reports the current recording status and offset.
func (s *Service) SessionState() session.State {
	return s.session.Snapshot()
}

// Recordings lists a note's recordings.
func (s *Service) Recordings(_ context.Context, noteID string) ([]refstore.Recording, error) {
	return s.refs.ListRecordings(noteID)
}

// RecordingReferences lists the ordered references within one recording.
func (s *Service) RecordingReferences(_ context.Context, recordingID string) ([]refstore.Reference, error) {
	if _, err := s.refs.GetRecording(recordingID); err != nil {
		return nil, err
	}
	return s.refs.ListReferences(recordingID)
}

// AddManualReference links a block to a recording moment by hand.
func (s *Service) AddManualReference(ctx context.Context, recordingID, blockID string, offsetMs int64, endOffsetMs *int64) (*refstore.Reference, error) {
	if _, err := s.refs.GetRecording(recordingID); err != nil {
		return nil, err
	}
	return s.refs.PutManualReference(recordingID, blockID, offsetMs, endOffsetMs)
}

// Timeline joins a note's blocks with its recorded moments in capture order.
// References whose blocks have since disappeared are marked orphaned rather
// than dropped, so external edits never silently lose audio history.
func (s *Service) Timeline(ctx context.Context, noteID string) ([]models.TimelineEntry, error) {
	note, err := s.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	refs, err := s.refs.NoteReferences(noteID)
	if err != nil {
		return nil, err
	}

	entries := make([]models.TimelineEntry, 0, len(refs))
	for _, ref := range refs {
		entry := models.TimelineEntry{
			BlockID:     ref.BlockID,
			RecordingID: ref.RecordingID,
			OffsetMs:    ref.OffsetMs,
			EndOffsetMs: ref.EndOffsetMs,
			Origin:      ref.Origin,
		}
		if b, ok := note.Tree.Get(ref.BlockID); ok {
			entry.Kind = b.Kind.String()
			entry.Text = b.Text()
		} else {
			entry.Orphaned = true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ResolveClip turns a block's reference into a bounded playable segment.
// The clip ends at the reference's own end offset when present, at the next
// reference within the recording otherwise, and at the end of the file as a
// last resort. An empty recordingID picks the block's earliest recording.
func (s *Service) ResolveClip(_ context.Context, recordingID, blockID string) (*models.Clip, error) {
	refs, err := s.refs.ReferencesForBlock(blockID)
	if err != nil {
		return nil, err
	}
	var ref *refstore.Reference
	for i := range refs {
		if recordingID == "" || refs[i].RecordingID == recordingID {
			ref = &refs[i]
			break
		}
	}
	if ref == nil {
		return nil, apperr.ErrNotFound
	}

	rec, err := s.refs.GetRecording(ref.RecordingID)
	if err != nil {
		return nil, err
	}

	end := int64(0)
	if ref.EndOffsetMs != nil {
		end = *ref.EndOffsetMs
	} else {
		siblings, err := s.refs.ListReferences(ref.RecordingID)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			if sib.OffsetMs > ref.OffsetMs {
				end = sib.OffsetMs
				break
			}
		}
	}
	if end == 0 && rec.DurationMs != nil {
		end = *rec.DurationMs
	}

	return &models.Clip{
		RecordingID: rec.ID,
		FilePath:    rec.FilePath,
		StartMs:     ref.OffsetMs,
		EndMs:       end,
	}, nil
}

// AudioPath returns the wav file path for a recording, for streaming.
func (s *Service) AudioPath(_ context.Context, recordingID string) (string, error) {
	rec, err := s.refs.GetRecording(recordingID)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		return "", fmt.Errorf("recording file missing: %w", apperr.ErrNotFound)
	}
	return rec.FilePath, nil
}

// ImportAudio stores an externally produced wav file as a recording of the
// note. The file must carry a readable wav header.
func (s *Service) ImportAudio(ctx context.Context, noteID string, r io.Reader) (*refstore.Recording, error) {
	if _, err := s.GetNote(ctx, noteID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.recDir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.recDir, id+".wav")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write recording file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("close recording file: %w", err)
	}

	info, err := wav.Probe(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("imported audio is not a wav file: %w", apperr.ErrDecode)
	}

	durationMs := info.Duration().Milliseconds()
	row := refstore.Recording{
		ID:         id,
		NoteID:     noteID,
		FilePath:   path,
		DurationMs: &durationMs,
	}
	if err := s.refs.PutRecording(row); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &row, nil
}
