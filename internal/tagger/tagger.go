// Package tagger links blocks to the audio that was being captured while
// they were written. It listens to mutation batches and records one audio
// reference per block per recording session.
package tagger

import (
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/block"
)

// Session is the slice of the recording session the tagger reads.
type Session interface {
	Current() (recordingID string, active bool)
	Offset() time.Duration
}

// Store persists audio references. PutAutoReference must be idempotent per
// (recording, block) pair.
type Store interface {
	PutAutoReference(recordingID, blockID string, offsetMs int64) error
}

// Tagger timestamps freshly created text blocks against the active
// recording. Store writes are fire-and-forget so the editing path never
// waits on storage.
type Tagger struct {
	session Session
	store   Store

	mu          sync.Mutex
	recordingID string
	seen        map[string]struct{}

	spawn func(func())
}

// New returns a tagger over the given session and store.
func New(session Session, store Store) *Tagger {
	return &Tagger{
		session: session,
		store:   store,
		seen:    map[string]struct{}{},
		spawn:   func(fn func()) { go fn() },
	}
}

// taggable is the set of kinds that get auto-tagged on creation: the
// text-authoring kinds only.
func taggable(k block.Kind) bool {
	switch k {
	case block.KindParagraph, block.KindHeading, block.KindListItem:
		return true
	}
	return false
}

// Observe processes one committed mutation batch. Callers invoke it
// synchronously after the batch commits so captured offsets follow creation
// order. Offsets are read per event, one wall-clock sample per created block.
func (t *Tagger) Observe(tree *block.Tree, events []block.Event) {
	recID, active := t.session.Current()
	if !active {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if recID != t.recordingID {
		// New recording session: every block is fair game again.
		t.recordingID = recID
		t.seen = map[string]struct{}{}
	}

	for _, ev := range events {
		if ev.Kind != block.EventCreated || !taggable(ev.Block.Kind) {
			continue
		}
		if _, dup := t.seen[ev.ID]; dup {
			continue
		}
		// Marked before the write is issued; a redelivered created event
		// can never produce a second reference.
		t.seen[ev.ID] = struct{}{}

		if tree.HasChildOfKind(ev.ID, block.KindAudio) {
			// Manually anchored already.
			continue
		}

		blockID := ev.ID
		offsetMs := t.session.Offset().Milliseconds()
		t.spawn(func() {
			if err := t.store.PutAutoReference(recID, blockID, offsetMs); err != nil {
				slog.Error("auto tag write failed",
					"recording", recID, "block", blockID, "offset_ms", offsetMs, "error", err)
			}
		})
	}
}
