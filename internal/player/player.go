// Package player plays bounded clips out of longer recordings: a block
// anchored at 12.5s plays [12.5s, next anchor) rather than the whole file.
package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// State enumerates the player lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateEnded
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Status is a point-in-time view of the player for status endpoints.
// Position and ClipLength are clip-relative.
type Status struct {
	State      State
	Position   time.Duration
	ClipLength time.Duration
	Err        error
}

// Player drives one clip at a time. All positions exposed by the player are
// relative to the clip start, so a clip [5s, 25s) displays as [0s, 20s].
type Player struct {
	mu    sync.Mutex
	state State
	src   Source
	start time.Duration
	end   time.Duration
	err   error
}

// New returns an empty player with nothing loaded.
func New() *Player { return &Player{state: StateIdle} }

// Load opens a source and binds the player to the clip [start, end). An end
// of 0 (or past the file) plays to the end of the file. Both bounds are
// clamped into the source's duration and the playhead parks at start. A
// failed load puts only the player into StateError; the previous source is
// closed either way.
func (p *Player) Load(open func() (Source, error), start, end time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src != nil {
		_ = p.src.Close()
		p.src = nil
	}
	p.state = StateLoading
	p.err = nil

	src, err := open()
	if err != nil {
		return p.fail(err)
	}
	d := src.Duration()
	if d <= 0 {
		_ = src.Close()
		return p.fail(errors.New("source reports no duration"))
	}
	if start < 0 {
		start = 0
	}
	if start > d {
		start = d
	}
	if end <= 0 || end > d {
		end = d
	}
	if end < start {
		end = start
	}
	if err := src.Seek(start); err != nil {
		_ = src.Close()
		return p.fail(err)
	}
	p.src = src
	p.start = start
	p.end = end
	p.state = StateReady
	return nil
}

// fail is called with the lock held.
func (p *Player) fail(err error) error {
	p.state = StateError
	if errors.Is(err, apperr.ErrSourceLoad) {
		p.err = err
	} else {
		p.err = fmt.Errorf("audio source: %v: %w", err, apperr.ErrSourceLoad)
	}
	return p.err
}

// Play starts or resumes playback. At the end of the clip it rewinds to the
// clip start before resuming.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateReady, StatePlaying, StatePaused, StateEnded:
	default:
		return fmt.Errorf("no clip loaded: %w", apperr.ErrNotFound)
	}
	if p.state == StateEnded || p.src.Position() >= p.end {
		if err := p.src.Seek(p.start); err != nil {
			return p.fail(err)
		}
	}
	if err := p.src.Play(); err != nil {
		return p.fail(err)
	}
	p.state = StatePlaying
	return nil
}

// Pause halts playback, keeping the playhead where it is.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return nil
	}
	if err := p.src.Pause(); err != nil {
		return p.fail(err)
	}
	p.state = StatePaused
	return nil
}

// Position reports the playhead relative to the clip start, never negative
// and never past the clip length.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

// position is called with the lock held.
func (p *Player) position() time.Duration {
	if p.src == nil {
		return 0
	}
	pos := p.src.Position()
	if pos <= p.start {
		return 0
	}
	if pos > p.end {
		pos = p.end
	}
	return pos - p.start
}

// ClipLength returns the bounded clip's length.
func (p *Player) ClipLength() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.end - p.start
}

// Seek moves the playhead to a clip-relative position, clamped to the clip.
func (p *Player) Seek(to time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seek(to)
}

// seek is called with the lock held.
func (p *Player) seek(to time.Duration) error {
	if p.src == nil {
		return fmt.Errorf("no clip loaded: %w", apperr.ErrNotFound)
	}
	abs := p.start + to
	if abs < p.start {
		abs = p.start
	}
	if abs > p.end {
		abs = p.end
	}
	if err := p.src.Seek(abs); err != nil {
		return p.fail(err)
	}
	if p.state == StateEnded && abs < p.end {
		p.state = StatePaused
	}
	return nil
}

// SkipForward jumps ahead by d, clamped to the end of the clip.
func (p *Player) SkipForward(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seek(p.position() + d)
}

// SkipBackward jumps back by d, clamped to the start of the clip.
func (p *Player) SkipBackward(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seek(p.position() - d)
}

// Tick enforces the clip bound: when playback reaches the end it pauses the
// source and parks the player on StateEnded with the playhead at the bound.
// The serve loop drives this from a timer; tests call it directly.
func (p *Player) Tick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return
	}
	if p.src.Position() >= p.end {
		_ = p.src.Pause()
		_ = p.src.Seek(p.end)
		p.state = StateEnded
	}
}

// Run calls Tick on an interval until ctx is cancelled.
func (p *Player) Run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Tick()
		}
	}
}

// Status reports the current state, clip-relative position, and clip length.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:      p.state,
		Position:   p.position(),
		ClipLength: p.end - p.start,
		Err:        p.err,
	}
}

// Close releases the source and returns the player to StateIdle.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.src != nil {
		err = p.src.Close()
		p.src = nil
	}
	p.state = StateIdle
	p.err = nil
	p.start, p.end = 0, 0
	return err
}
