// Package session owns the process-wide recording session: a singleton
// state machine that is either Idle or Active, delegating actual audio I/O
// to a capture Engine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
)

// Status enumerates the session states.
type Status uint8

const (
	Idle Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Engine is the capture collaborator. Begin must create the destination
// file and start writing to it; End must stop the capture, finalize the
// file, and report the captured duration.
type Engine interface {
	Begin(ctx context.Context, noteID, recordingID string) (path string, err error)
	End(ctx context.Context, recordingID string) (time.Duration, error)
}

// Recording identifies one capture.
type Recording struct {
	ID        string
	NoteID    string
	Path      string
	StartedAt time.Time
	Duration  time.Duration // zero until Stop succeeds
}

// State is a point-in-time view of the session for status endpoints.
type State struct {
	Status      Status
	RecordingID string
	NoteID      string
	StartedAt   time.Time
	Offset      time.Duration
}

// Manager serializes session transitions. At most one capture is active per
// process; concurrent Start calls race for the same slot and the loser gets
// ErrAlreadyRecording.
type Manager struct {
	engine Engine
	now    func() time.Time

	mu         sync.Mutex
	status     Status
	current    Recording
	lastPolled time.Duration
}

// NewManager returns an idle session manager over the given capture engine.
func NewManager(engine Engine) *Manager {
	return &Manager{engine: engine, now: time.Now}
}

// Start generates a recording id, asks the engine to begin capturing, and
// flips the session to Active. When the engine fails the session stays Idle
// and the error wraps ErrCapture.
func (m *Manager) Start(ctx context.Context, noteID string) (Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Active {
		return Recording{}, fmt.Errorf("recording %s active: %w", m.current.ID, apperr.ErrAlreadyRecording)
	}
	rec := Recording{ID: uuid.NewString(), NoteID: noteID}
	path, err := m.engine.Begin(ctx, noteID, rec.ID)
	if err != nil {
		return Recording{}, fmt.Errorf("begin capture: %v: %w", err, apperr.ErrCapture)
	}
	rec.Path = path
	rec.StartedAt = m.now()
	m.status = Active
	m.current = rec
	m.lastPolled = 0
	slog.Info("recording started", "recording", rec.ID, "note", noteID, "path", path)
	return rec, nil
}

// Stop finalizes the active capture and reverts to Idle. The session state
// is cleared even when the engine fails to finalize; in that case the
// returned recording has no duration and the error wraps ErrCapture.
func (m *Manager) Stop(ctx context.Context) (Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active {
		return Recording{}, apperr.ErrNotRecording
	}
	rec := m.current
	m.status = Idle
	m.current = Recording{}
	m.lastPolled = 0

	d, err := m.engine.End(ctx, rec.ID)
	if err != nil {
		slog.Error("finalize capture", "recording", rec.ID, "error", err)
		return rec, fmt.Errorf("end capture: %v: %w", err, apperr.ErrCapture)
	}
	rec.Duration = d
	slog.Info("recording stopped", "recording", rec.ID, "duration_ms", d.Milliseconds())
	return rec, nil
}

// Offset reports the wall-clock distance from session start; 0 while Idle.
// The editor polls this to timestamp blocks as they are created, so the
// clock never rewinds or resets while the session stays Active.
func (m *Manager) Offset() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active {
		return 0
	}
	d := m.now().Sub(m.current.StartedAt)
	m.lastPolled = d
	return d
}

// Current returns the active recording id, or false while Idle.
func (m *Manager) Current() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active {
		return "", false
	}
	return m.current.ID, true
}

// Snapshot returns the session state for the status endpoint.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{Status: m.status}
	if m.status == Active {
		st.RecordingID = m.current.ID
		st.NoteID = m.current.NoteID
		st.StartedAt = m.current.StartedAt
		st.Offset = m.now().Sub(m.current.StartedAt)
	}
	return st
}
