package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

type fakeEngine struct {
	beginErr error
	endErr   error
	duration time.Duration
	begun    []string
	ended    []string
}

func (f *fakeEngine) Begin(_ context.Context, noteID, recordingID string) (string, error) {
	if f.beginErr != nil {
		return "", f.beginErr
	}
	f.begun = append(f.begun, recordingID)
	return "audio/" + recordingID + ".wav", nil
}

func (f *fakeEngine) End(_ context.Context, recordingID string) (time.Duration, error) {
	f.ended = append(f.ended, recordingID)
	if f.endErr != nil {
		return 0, f.endErr
	}
	return f.duration, nil
}

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestStartStop(t *testing.T) {
	eng := &fakeEngine{duration: 3 * time.Second}
	m := NewManager(eng)

	rec, err := m.Start(context.Background(), "notes/standup")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.ID == "" || rec.Path == "" {
		t.Fatalf("recording = %+v", rec)
	}
	if id, active := m.Current(); !active || id != rec.ID {
		t.Errorf("Current = %q %v, want %q true", id, active, rec.ID)
	}

	stopped, err := m.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.ID != rec.ID {
		t.Errorf("stopped id = %q, want %q", stopped.ID, rec.ID)
	}
	if stopped.Duration != 3*time.Second {
		t.Errorf("duration = %v, want 3s", stopped.Duration)
	}
	if _, active := m.Current(); active {
		t.Error("session should be idle after Stop")
	}
	if len(eng.begun) != 1 || len(eng.ended) != 1 {
		t.Errorf("engine calls = %v / %v", eng.begun, eng.ended)
	}
}

func TestStartWhileActive(t *testing.T) {
	m := NewManager(&fakeEngine{})
	first, err := m.Start(context.Background(), "a")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err = m.Start(context.Background(), "b")
	if !errors.Is(err, apperr.ErrAlreadyRecording) {
		t.Fatalf("err = %v, want ErrAlreadyRecording", err)
	}
	if id, _ := m.Current(); id != first.ID {
		t.Errorf("active recording changed to %q", id)
	}
}

func TestStartEngineFailure(t *testing.T) {
	m := NewManager(&fakeEngine{beginErr: errors.New("device busy")})
	_, err := m.Start(context.Background(), "a")
	if !errors.Is(err, apperr.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if _, active := m.Current(); active {
		t.Error("failed start left session active")
	}
	if m.Offset() != 0 {
		t.Error("offset should be 0 while idle")
	}
}

func TestStopWhileIdle(t *testing.T) {
	m := NewManager(&fakeEngine{})
	_, err := m.Stop(context.Background())
	if !errors.Is(err, apperr.ErrNotRecording) {
		t.Fatalf("err = %v, want ErrNotRecording", err)
	}
}

func TestStopClearsStateOnEngineFailure(t *testing.T) {
	m := NewManager(&fakeEngine{endErr: errors.New("flush failed")})
	if _, err := m.Start(context.Background(), "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err := m.Stop(context.Background())
	if !errors.Is(err, apperr.ErrCapture) {
		t.Fatalf("err = %v, want ErrCapture", err)
	}
	if _, active := m.Current(); active {
		t.Error("failed Stop must still clear the session")
	}
	if _, err := m.Stop(context.Background()); !errors.Is(err, apperr.ErrNotRecording) {
		t.Errorf("second Stop err = %v, want ErrNotRecording", err)
	}
}

func TestOffsetFollowsWallClock(t *testing.T) {
	m := NewManager(&fakeEngine{})
	now, advance := testClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	m.now = now

	if m.Offset() != 0 {
		t.Error("offset should be 0 before start")
	}
	if _, err := m.Start(context.Background(), "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := m.Offset(); got >= 50*time.Millisecond {
		t.Errorf("offset right after start = %v, want < 50ms", got)
	}
	advance(2 * time.Second)
	if got := m.Offset(); got != 2*time.Second {
		t.Errorf("offset after 2s = %v", got)
	}
	advance(500 * time.Millisecond)
	if got := m.Offset(); got != 2500*time.Millisecond {
		t.Errorf("offset = %v, want 2.5s", got)
	}
	if _, err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Offset() != 0 {
		t.Error("offset should be 0 after stop")
	}
}

func TestSnapshot(t *testing.T) {
	m := NewManager(&fakeEngine{})
	st := m.Snapshot()
	if st.Status != Idle || st.RecordingID != "" {
		t.Errorf("idle snapshot = %+v", st)
	}
	rec, err := m.Start(context.Background(), "notes/a")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	st = m.Snapshot()
	if st.Status != Active || st.RecordingID != rec.ID || st.NoteID != "notes/a" {
		t.Errorf("active snapshot = %+v", st)
	}
}

func TestNewRecordingIDPerSession(t *testing.T) {
	m := NewManager(&fakeEngine{})
	a, _ := m.Start(context.Background(), "n")
	_, _ = m.Stop(context.Background())
	b, _ := m.Start(context.Background(), "n")
	if a.ID == b.ID {
		t.Error("recording ids must differ between sessions")
	}
}
