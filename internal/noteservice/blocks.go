package noteservice

import (
	"context"
	"log/slog"

	"github.com/starford/ansuz/internal/block"
)

// mutate runs fn against a note's tree under its writer lock, saves on
// success, feeds the resulting events to the auto-tagger, and drops
// references to removed blocks.
func (s *Service) mutate(id string, fn func(*block.Mutation) error) ([]block.Event, error) {
	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := s.loadLocked(d, id); err != nil {
		return nil, err
	}
	events, err := d.tree.Mutate(fn)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return events, nil
	}
	if err := s.saveLocked(d, id); err != nil {
		return nil, err
	}

	s.tagger.Observe(d.tree, events)

	for _, ev := range events {
		if ev.Kind != block.EventRemoved {
			continue
		}
		if err := s.refs.DeleteReferencesForBlock(ev.ID); err != nil {
			slog.Warn("reference cleanup failed", "block", ev.ID, "error", err.Error())
		}
	}
	return events, nil
}

// CreateBlock inserts a block under parentID (the root when empty) at the
// given child index. Creating an audio-block under a text block also records
// a manual reference so the moment shows up on the timeline.
func (s *Service) CreateBlock(_ context.Context, noteID, parentID string, index int, b block.Block) (block.Block, error) {
	var created block.Block
	var parentKind block.Kind
	_, err := s.mutate(noteID, func(m *block.Mutation) error {
		if parentID == "" {
			parentID = m.RootID()
		}
		if p, ok := m.Get(parentID); ok {
			parentKind = p.Kind
		}
		var err error
		created, err = m.Create(parentID, index, b)
		return err
	})
	if err != nil {
		return block.Block{}, err
	}

	if created.Kind == block.KindAudio && created.Audio != nil && parentKind.TextBearing() {
		_, err := s.refs.PutManualReference(created.Audio.RecordingID, parentID, created.Audio.StartOffsetMs, nil)
		if err != nil {
			slog.Warn("manual reference failed", "block", parentID, "recording", created.Audio.RecordingID, "error", err.Error())
		}
	}
	return created, nil
}

// UpdateBlockRuns replaces the inline runs of a text block.
func (s *Service) UpdateBlockRuns(_ context.Context, noteID, blockID string, runs []block.Run) (block.Block, error) {
	var updated block.Block
	_, err := s.mutate(noteID, func(m *block.Mutation) error {
		var err error
		updated, err = m.SetRuns(blockID, runs...)
		return err
	})
	if err != nil {
		return block.Block{}, err
	}
	return updated, nil
}

// RemoveBlock deletes a block and its subtree. References held by the
// removed blocks are dropped from the store.
func (s *Service) RemoveBlock(_ context.Context, noteID, blockID string) error {
	_, err := s.mutate(noteID, func(m *block.Mutation) error {
		return m.Remove(blockID)
	})
	return err
}

// MoveBlock reparents a block to newParentID (the root when empty) at the
// given child index.
func (s *Service) MoveBlock(_ context.Context, noteID, blockID, newParentID string, index int) error {
	_, err := s.mutate(noteID, func(m *block.Mutation) error {
		if newParentID == "" {
			newParentID = m.RootID()
		}
		return m.Move(blockID, newParentID, index)
	})
	return err
}
