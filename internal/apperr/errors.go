// Package apperr defines the sentinel errors shared across the engine.
// Callers wrap them with fmt.Errorf("...: %w", err) and match with errors.Is.
package apperr

import "errors"

var (
	// Document / tree errors.
	ErrStructural = errors.New("structural violation")
	ErrCycle      = errors.New("cycle rejected")
	ErrDecode     = errors.New("snapshot decode failed")

	// Recording session errors.
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrCapture          = errors.New("audio capture failed")

	// Playback errors.
	ErrSourceLoad = errors.New("audio source load failed")

	// Generic storage errors.
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)
