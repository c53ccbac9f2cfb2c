// Package codec serializes documents two ways: a lossless JSON snapshot that
// round-trips every block field, and a human-readable markup rendering that
// deliberately loses the audio and reference kinds.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/block"
)

const (
	snapshotFormat  = "ansuz-snapshot"
	snapshotVersion = 1
)

// kindVersions carries the current schema version per block kind. Decoding
// tolerates newer versions by ignoring fields it does not know about.
var kindVersions = map[block.Kind]int{
	block.KindRoot:      1,
	block.KindParagraph: 1,
	block.KindHeading:   1,
	block.KindListItem:  1,
	block.KindQuote:     1,
	block.KindCode:      1,
	block.KindLink:      1,
	block.KindAudio:     1,
	block.KindBlockRef:  1,
	block.KindBacklink:  1,
}

type snapshotDoc struct {
	Format  string        `json:"format"`
	Version int           `json:"version"`
	Root    string        `json:"root"`
	Blocks  []blockRecord `json:"blocks"`
}

type blockRecord struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	V        int             `json:"v"`
	Children []string        `json:"children,omitempty"`
	Level    int             `json:"level,omitempty"`
	Marker   string          `json:"marker,omitempty"`
	Language string          `json:"language,omitempty"`
	Href     string          `json:"href,omitempty"`
	Runs     []runRecord     `json:"runs,omitempty"`
	Audio    *audioRecord    `json:"audio,omitempty"`
	Ref      *refRecord      `json:"ref,omitempty"`
	Backlink *backlinkRecord `json:"backlink,omitempty"`
}

type runRecord struct {
	Text   string `json:"text"`
	Format int    `json:"format,omitempty"`
}

type audioRecord struct {
	RecordingID   string `json:"recording_id"`
	Source        string `json:"source"`
	StartOffsetMs int64  `json:"start_offset_ms"`
}

type refRecord struct {
	TargetBlockID string `json:"target_block_id"`
	TargetNoteID  string `json:"target_note_id,omitempty"`
	Preview       string `json:"preview,omitempty"`
}

type backlinkRecord struct {
	TargetNoteID string `json:"target_note_id"`
	TargetTitle  string `json:"target_title,omitempty"`
}

// EncodeSnapshot renders the tree as the lossless snapshot form. Blocks are
// listed in document order, parents before children.
func EncodeSnapshot(t *block.Tree) ([]byte, error) {
	doc := snapshotDoc{
		Format:  snapshotFormat,
		Version: snapshotVersion,
		Root:    t.RootID(),
		Blocks:  make([]blockRecord, 0, t.Len()),
	}
	err := t.Walk(func(b block.Block, _ int) error {
		doc.Blocks = append(doc.Blocks, toRecord(b, t.ChildIDs(b.ID)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return json.MarshalIndent(doc, "", "  ")
}

func toRecord(b block.Block, children []string) blockRecord {
	rec := blockRecord{
		ID:       b.ID,
		Kind:     b.Kind.String(),
		V:        kindVersions[b.Kind],
		Children: children,
		Level:    b.Level,
		Language: b.Language,
		Href:     b.Href,
	}
	if b.Marker != 0 {
		rec.Marker = string(b.Marker)
	}
	for _, r := range b.Runs {
		rec.Runs = append(rec.Runs, runRecord{Text: r.Text, Format: int(r.Format)})
	}
	if b.Audio != nil {
		rec.Audio = &audioRecord{
			RecordingID:   b.Audio.RecordingID,
			Source:        b.Audio.Source,
			StartOffsetMs: b.Audio.StartOffsetMs,
		}
	}
	if b.Ref != nil {
		rec.Ref = &refRecord{
			TargetBlockID: b.Ref.TargetBlockID,
			TargetNoteID:  b.Ref.TargetNoteID,
			Preview:       b.Ref.Preview,
		}
	}
	if b.Backlink != nil {
		rec.Backlink = &backlinkRecord{
			TargetNoteID: b.Backlink.TargetNoteID,
			TargetTitle:  b.Backlink.TargetTitle,
		}
	}
	return rec
}

// DecodeSnapshot rebuilds a tree from snapshot bytes. Malformed input,
// dangling child ids, blocks with multiple parents, cycles, and unreachable
// blocks all fail with ErrDecode and no document is produced.
func DecodeSnapshot(data []byte) (*block.Tree, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %v: %w", err, apperr.ErrDecode)
	}
	if doc.Format != snapshotFormat {
		return nil, fmt.Errorf("format %q: %w", doc.Format, apperr.ErrDecode)
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("snapshot version %d: %w", doc.Version, apperr.ErrDecode)
	}
	if doc.Root == "" {
		return nil, fmt.Errorf("missing root id: %w", apperr.ErrDecode)
	}

	records := make(map[string]blockRecord, len(doc.Blocks))
	for _, rec := range doc.Blocks {
		if rec.ID == "" {
			return nil, fmt.Errorf("block without id: %w", apperr.ErrDecode)
		}
		if _, dup := records[rec.ID]; dup {
			return nil, fmt.Errorf("duplicate block id %q: %w", rec.ID, apperr.ErrDecode)
		}
		records[rec.ID] = rec
	}

	rootRec, ok := records[doc.Root]
	if !ok {
		return nil, fmt.Errorf("root %q not in blocks: %w", doc.Root, apperr.ErrDecode)
	}
	if rootRec.Kind != block.KindRoot.String() {
		return nil, fmt.Errorf("root block has kind %q: %w", rootRec.Kind, apperr.ErrDecode)
	}

	tr := block.NewTreeWithRoot(block.Block{ID: doc.Root, Kind: block.KindRoot})
	visited := map[string]bool{doc.Root: true}
	_, err := tr.Mutate(func(m *block.Mutation) error {
		return attachChildren(m, records, visited, doc.Root, rootRec.Children)
	})
	if err != nil {
		return nil, err
	}
	if len(visited) != len(records) {
		return nil, fmt.Errorf("%d blocks unreachable from root: %w", len(records)-len(visited), apperr.ErrDecode)
	}
	return tr, nil
}

func attachChildren(m *block.Mutation, records map[string]blockRecord, visited map[string]bool, parent string, children []string) error {
	for _, id := range children {
		rec, ok := records[id]
		if !ok {
			return fmt.Errorf("dangling child id %q: %w", id, apperr.ErrDecode)
		}
		if visited[id] {
			return fmt.Errorf("block %q reached twice (multiple parents or cycle): %w", id, apperr.ErrDecode)
		}
		visited[id] = true
		b, err := fromRecord(rec)
		if err != nil {
			return err
		}
		if _, err := m.Create(parent, -1, b); err != nil {
			return fmt.Errorf("attach %q: %v: %w", id, err, apperr.ErrDecode)
		}
		if err := attachChildren(m, records, visited, id, rec.Children); err != nil {
			return err
		}
	}
	return nil
}

func fromRecord(rec blockRecord) (block.Block, error) {
	kind, ok := block.KindFromString(rec.Kind)
	if !ok {
		return block.Block{}, fmt.Errorf("block %q has unknown kind %q: %w", rec.ID, rec.Kind, apperr.ErrDecode)
	}
	if kind == block.KindRoot {
		return block.Block{}, fmt.Errorf("block %q: root below root: %w", rec.ID, apperr.ErrDecode)
	}
	if rec.V < 1 {
		return block.Block{}, fmt.Errorf("block %q has version %d: %w", rec.ID, rec.V, apperr.ErrDecode)
	}
	if len(rec.Children) > 0 && !kind.Container() {
		return block.Block{}, fmt.Errorf("%s block %q cannot have children: %w", rec.Kind, rec.ID, apperr.ErrDecode)
	}

	b := block.Block{
		ID:       rec.ID,
		Kind:     kind,
		Level:    rec.Level,
		Language: rec.Language,
		Href:     rec.Href,
	}
	if rec.Marker != "" {
		b.Marker = rec.Marker[0]
	}
	for _, r := range rec.Runs {
		b.Runs = append(b.Runs, block.Styled(r.Text, block.Format(r.Format)))
	}

	switch kind {
	case block.KindHeading:
		if rec.Level < 1 || rec.Level > 6 {
			return block.Block{}, fmt.Errorf("heading %q level %d: %w", rec.ID, rec.Level, apperr.ErrDecode)
		}
	case block.KindAudio:
		if rec.Audio == nil || rec.Audio.RecordingID == "" || rec.Audio.Source == "" {
			return block.Block{}, fmt.Errorf("audio block %q payload incomplete: %w", rec.ID, apperr.ErrDecode)
		}
		b.Audio = &block.AudioPayload{
			RecordingID:   rec.Audio.RecordingID,
			Source:        rec.Audio.Source,
			StartOffsetMs: rec.Audio.StartOffsetMs,
		}
	case block.KindBlockRef:
		if rec.Ref == nil || rec.Ref.TargetBlockID == "" {
			return block.Block{}, fmt.Errorf("block reference %q payload incomplete: %w", rec.ID, apperr.ErrDecode)
		}
		b.Ref = &block.RefPayload{
			TargetBlockID: rec.Ref.TargetBlockID,
			TargetNoteID:  rec.Ref.TargetNoteID,
			Preview:       rec.Ref.Preview,
		}
	case block.KindBacklink:
		if rec.Backlink == nil || rec.Backlink.TargetNoteID == "" {
			return block.Block{}, fmt.Errorf("backlink %q payload incomplete: %w", rec.ID, apperr.ErrDecode)
		}
		b.Backlink = &block.BacklinkPayload{
			TargetNoteID: rec.Backlink.TargetNoteID,
			TargetTitle:  rec.Backlink.TargetTitle,
		}
	}
	return b, nil
}
