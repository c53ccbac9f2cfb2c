// Package capture records note audio through an external ffmpeg process.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/wav"
)

// startupGrace is how long Begin watches a fresh ffmpeg process before
// trusting it. Bad devices make ffmpeg exit almost immediately, and catching
// that here turns a silent dead recording into a synchronous error.
const startupGrace = 300 * time.Millisecond

// stopTimeout bounds how long End waits for ffmpeg to finalize the file
// after an interrupt before killing it.
const stopTimeout = 5 * time.Second

// Options configure the ffmpeg capture engine.
type Options struct {
	Binary string // ffmpeg executable, defaults to "ffmpeg"
	Format string // input demuxer passed to -f, e.g. "alsa" or "avfoundation"
	Device string // capture device passed to -i
	Dir    string // directory where finished wav files land
}

// FFmpegEngine records audio by spawning one ffmpeg process per recording.
// It writes 48kHz stereo PCM wav files named after the recording id.
type FFmpegEngine struct {
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	procs map[string]*proc
}

type proc struct {
	cmd       *exec.Cmd
	path      string
	startedAt time.Time
	stderr    *bytes.Buffer
	done      chan struct{}
}

// Verify the engine satisfies the session contract at compile time.
var _ session.Engine = (*FFmpegEngine)(nil)

// NewFFmpegEngine returns an engine using the given options. The binary is
// not resolved until Begin so the app can run on hosts without ffmpeg until
// someone actually records.
func NewFFmpegEngine(opts Options) *FFmpegEngine {
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	return &FFmpegEngine{
		opts:  opts,
		now:   time.Now,
		procs: make(map[string]*proc),
	}
}

// Begin starts capturing and returns the path the recording is written to.
func (e *FFmpegEngine) Begin(ctx context.Context, noteID, recordingID string) (string, error) {
	if _, err := exec.LookPath(e.opts.Binary); err != nil {
		return "", fmt.Errorf("capture: %s not found: %w", e.opts.Binary, apperr.ErrCapture)
	}
	if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("capture: create recording dir: %w", err)
	}

	path := filepath.Join(e.opts.Dir, recordingID+".wav")
	cmd := exec.Command(e.opts.Binary,
		"-hide_banner", "-loglevel", "error",
		"-f", e.opts.Format,
		"-i", e.opts.Device,
		"-ac", "2", "-ar", "48000", "-c:a", "pcm_s16le",
		"-y", path,
	)

	p := &proc{
		cmd:    cmd,
		path:   path,
		stderr: &bytes.Buffer{},
		done:   make(chan struct{}),
	}
	cmd.Stderr = p.stderr

	e.mu.Lock()
	if _, exists := e.procs[recordingID]; exists {
		e.mu.Unlock()
		return "", fmt.Errorf("capture: recording %s already running: %w", recordingID, apperr.ErrAlreadyRecording)
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("capture: start ffmpeg: %v: %w", err, apperr.ErrCapture)
	}
	p.startedAt = e.now()
	e.procs[recordingID] = p
	e.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	// Watch the process briefly. An unreadable device makes ffmpeg bail out
	// right away, and that must fail Begin rather than a later End.
	select {
	case <-p.done:
		e.forget(recordingID)
		return "", fmt.Errorf("capture: ffmpeg exited: %s: %w", stderrTail(p), apperr.ErrCapture)
	case <-ctx.Done():
		e.forget(recordingID)
		_ = cmd.Process.Kill()
		<-p.done
		return "", fmt.Errorf("capture: %w", ctx.Err())
	case <-time.After(startupGrace):
	}

	slog.Info("capture started", "recording", recordingID, "note", noteID, "path", path)
	return path, nil
}

// End interrupts ffmpeg, waits for it to finalize the file, and returns the
// recording's duration. The wav header is the authority when readable;
// otherwise elapsed wall time stands in.
func (e *FFmpegEngine) End(ctx context.Context, recordingID string) (time.Duration, error) {
	e.mu.Lock()
	p, ok := e.procs[recordingID]
	delete(e.procs, recordingID)
	e.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("capture: recording %s: %w", recordingID, apperr.ErrNotFound)
	}

	// SIGINT lets ffmpeg flush and patch the RIFF header sizes.
	_ = p.cmd.Process.Signal(os.Interrupt)

	select {
	case <-p.done:
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		<-p.done
	case <-time.After(stopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}

	elapsed := e.now().Sub(p.startedAt)
	if info, err := wav.Probe(p.path); err == nil && info.Duration() > 0 {
		slog.Info("capture stopped", "recording", recordingID, "duration", info.Duration())
		return info.Duration(), nil
	}
	if _, err := os.Stat(p.path); err != nil {
		return elapsed, fmt.Errorf("capture: no output for %s: %s: %w", recordingID, stderrTail(p), apperr.ErrCapture)
	}
	slog.Info("capture stopped", "recording", recordingID, "duration", elapsed, "probe", "failed")
	return elapsed, nil
}

// Shutdown stops any still-running captures. Called on process exit so a
// crashing server does not leave orphan ffmpeg processes behind.
func (e *FFmpegEngine) Shutdown() {
	e.mu.Lock()
	procs := e.procs
	e.procs = make(map[string]*proc)
	e.mu.Unlock()

	for _, p := range procs {
		_ = p.cmd.Process.Signal(os.Interrupt)
	}
	for _, p := range procs {
		select {
		case <-p.done:
		case <-time.After(stopTimeout):
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	}
}

func (e *FFmpegEngine) forget(recordingID string) {
	e.mu.Lock()
	delete(e.procs, recordingID)
	e.mu.Unlock()
}

func stderrTail(p *proc) string {
	s := strings.TrimSpace(p.stderr.String())
	if s == "" {
		return "no stderr output"
	}
	if lines := strings.Split(s, "\n"); len(lines) > 3 {
		s = strings.Join(lines[len(lines)-3:], "\n")
	}
	return s
}
