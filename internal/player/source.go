package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/wav"
)

// Source is a playable audio handle. Positions are absolute offsets into
// the underlying file; the Player maps them to clip-relative time.
type Source interface {
	Duration() time.Duration
	Play() error
	Pause() error
	Seek(to time.Duration) error
	Position() time.Duration
	Close() error
}

// ClockSource tracks a playhead against the wall clock. It is the engine's
// mirror of whatever renders sound on the host: transport state advances the
// position, it never produces samples itself.
type ClockSource struct {
	duration time.Duration
	now      func() time.Time

	mu       sync.Mutex
	playing  bool
	anchor   time.Time
	position time.Duration
}

// NewClockSource returns a paused source of the given duration, positioned
// at 0.
func NewClockSource(d time.Duration) *ClockSource {
	return &ClockSource{duration: d, now: time.Now}
}

// NewFileSource probes the WAV file at path and returns a clock-driven
// source of its duration. It resolves locally captured recordings into
// playable handles.
func NewFileSource(path string) (*ClockSource, error) {
	info, err := wav.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %v: %w", path, err, apperr.ErrSourceLoad)
	}
	d := info.Duration()
	if d <= 0 {
		return nil, fmt.Errorf("%s has no audio data: %w", path, apperr.ErrSourceLoad)
	}
	return NewClockSource(d), nil
}

func (s *ClockSource) Duration() time.Duration { return s.duration }

func (s *ClockSource) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		s.anchor = s.now()
		s.playing = true
	}
	return nil
}

func (s *ClockSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.position = s.pos()
		s.playing = false
	}
	return nil
}

func (s *ClockSource) Seek(to time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to < 0 {
		to = 0
	}
	if to > s.duration {
		to = s.duration
	}
	s.position = to
	s.anchor = s.now()
	return nil
}

func (s *ClockSource) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos()
}

func (s *ClockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.position = s.pos()
		s.playing = false
	}
	return nil
}

// pos is called with the lock held.
func (s *ClockSource) pos() time.Duration {
	p := s.position
	if s.playing {
		p += s.now().Sub(s.anchor)
	}
	if p > s.duration {
		p = s.duration
	}
	return p
}
