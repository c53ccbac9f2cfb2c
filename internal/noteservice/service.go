// Package noteservice owns the open documents and coordinates the vault,
// the reference store, the recording session, and the auto-tagger.
package noteservice

import (
	"context"
	"errors"
	"os"
	"path"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/block"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/codec"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/tagger"
)

// EventSink receives service-level events for broadcast over SSE.
// Implemented by *sse.Broker; a nil sink is allowed in tests. Document
// change events are not published here: every vault write loops back
// through the watcher, which is the single source of doc.* events.
type EventSink interface {
	PublishDocEvent(kind, noteID string)
	PublishTagged(noteID, blockID, recordingID string, offsetMs int64)
	PublishSession(kind, noteID, recordingID string)
}

// Service coordinates storage, reference store, and session operations.
type Service struct {
	store   storage.Provider
	refs    refstore.Store
	session *session.Manager
	tagger  *tagger.Tagger
	sink    EventSink
	root    string // absolute vault directory, used by the watcher
	recDir  string // directory holding recorded wav files

	mu   sync.Mutex
	docs map[string]*openDoc
}

// openDoc is a cached, decoded document. Its mutex serializes every load,
// mutation, and save for the note, so each document has a single writer.
type openDoc struct {
	mu       sync.Mutex
	tree     *block.Tree
	checksum string
	updated  time.Time
}

// NewService creates a new note service. The auto-tagger is wired internally:
// the service itself persists tag writes and republishes them.
func NewService(store storage.Provider, refs refstore.Store, sess *session.Manager, sink EventSink, root, recDir string) *Service {
	s := &Service{
		store:   store,
		refs:    refs,
		session: sess,
		sink:    sink,
		root:    root,
		recDir:  recDir,
		docs:    make(map[string]*openDoc),
	}
	s.tagger = tagger.New(sess, s)
	return s
}

// notePath maps a note id to its vault-relative snapshot path.
func notePath(id string) string {
	return id + storage.SnapshotExt
}

// doc returns the cache entry for a note, creating it if needed.
func (s *Service) doc(id string) *openDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		d = &openDoc{}
		s.docs[id] = d
	}
	return d
}

// evict drops a note from the cache.
func (s *Service) evict(id string) {
	s.mu.Lock()
	delete(s.docs, id)
	s.mu.Unlock()
}

// loadLocked fills d from disk if it is not already decoded.
// Caller holds d.mu.
func (s *Service) loadLocked(d *openDoc, id string) error {
	if d.tree != nil {
		return nil
	}
	data, err := s.store.Read(notePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	tree, err := codec.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	d.tree = tree
	d.checksum = checksum.Sum(data)
	d.updated = time.Now()
	return nil
}

// saveLocked encodes d.tree and writes it to the vault. On write failure the
// cache entry is reset so the next load starts from what is actually on disk.
// Caller holds d.mu.
func (s *Service) saveLocked(d *openDoc, id string) error {
	data, err := codec.EncodeSnapshot(d.tree)
	if err != nil {
		d.tree = nil
		return err
	}
	if err := s.store.Write(notePath(id), data); err != nil {
		d.tree = nil
		return err
	}
	d.checksum = checksum.Sum(data)
	d.updated = time.Now()
	return nil
}

// titleOf derives a display title: the first heading wins, else the first
// non-empty text block.
func titleOf(tree *block.Tree) string {
	var heading, fallback string
	_ = tree.Walk(func(b block.Block, _ int) error {
		if heading != "" {
			return nil
		}
		text := b.Text()
		if text == "" {
			return nil
		}
		if b.Kind == block.KindHeading {
			heading = text
		} else if fallback == "" && b.Kind.TextBearing() {
			fallback = text
		}
		return nil
	})
	if heading != "" {
		return heading
	}
	return fallback
}

func (s *Service) noteFrom(id string, d *openDoc) *models.Note {
	title := titleOf(d.tree)
	if title == "" {
		title = path.Base(id)
	}
	return &models.Note{
		ID:        id,
		Title:     title,
		Checksum:  d.checksum,
		UpdatedAt: d.updated,
		Tree:      d.tree,
	}
}

// ListNotes returns metadata for every document in the vault.
func (s *Service) ListNotes(_ context.Context) ([]models.NoteMetadata, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	for i := range metas {
		data, err := s.store.Read(notePath(metas[i].ID))
		if err != nil {
			continue
		}
		tree, err := codec.DecodeSnapshot(data)
		if err != nil {
			continue
		}
		metas[i].Title = titleOf(tree)
	}
	return metas, nil
}

// GetNote loads a document and returns it with its decoded tree.
func (s *Service) GetNote(_ context.Context, id string) (*models.Note, error) {
	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := s.loadLocked(d, id); err != nil {
		return nil, err
	}
	return s.noteFrom(id, d), nil
}

// CreateNote creates a new document. When markup is non-empty it is imported
// as the initial content; otherwise the document starts as a bare root.
func (s *Service) CreateNote(_ context.Context, id string, markup []byte) (*models.Note, error) {
	if _, err := s.store.Read(notePath(id)); err == nil {
		return nil, apperr.ErrAlreadyExists
	}

	var tree *block.Tree
	var err error
	if len(markup) > 0 {
		tree, err = codec.ImportMarkup(markup)
		if err != nil {
			return nil, err
		}
	} else {
		tree = block.NewTree()
	}

	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
	if err := s.saveLocked(d, id); err != nil {
		s.evict(id)
		return nil, err
	}
	return s.noteFrom(id, d), nil
}

// DeleteNote removes a document from the vault. Reference rows survive so
// recordings keep their history; the timeline marks them orphaned.
func (s *Service) DeleteNote(_ context.Context, id string) error {
	if err := s.store.Delete(notePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	s.evict(id)
	return nil
}

// RenameNote moves a document to a new id and re-homes its recordings.
func (s *Service) RenameNote(ctx context.Context, id, newID string) (*models.Note, error) {
	if id == newID {
		return s.GetNote(ctx, id)
	}
	if _, err := s.store.Read(notePath(newID)); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Move(notePath(id), notePath(newID)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	s.evict(id)
	if err := s.refs.RenameNote(id, newID); err != nil {
		return nil, err
	}
	return s.GetNote(ctx, newID)
}

// GetSnapshot returns the raw snapshot bytes and their checksum.
func (s *Service) GetSnapshot(_ context.Context, id string) ([]byte, string, error) {
	data, err := s.store.Read(notePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.ErrNotFound
		}
		return nil, "", err
	}
	return data, checksum.Sum(data), nil
}

// PutSnapshot replaces a document with client-provided snapshot bytes under
// optimistic concurrency. The payload is decoded first; nothing is written
// when it does not validate.
func (s *Service) PutSnapshot(_ context.Context, id string, data []byte, ifMatch string) (*models.Note, error) {
	tree, err := codec.DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.Read(notePath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}

	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
	if err := s.saveLocked(d, id); err != nil {
		return nil, err
	}
	return s.noteFrom(id, d), nil
}

// ExportMarkup renders a document as markup text.
func (s *Service) ExportMarkup(_ context.Context, id string) ([]byte, error) {
	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := s.loadLocked(d, id); err != nil {
		return nil, err
	}
	return []byte(codec.ExportMarkup(d.tree)), nil
}

// ImportMarkup replaces a document's blocks with freshly imported markup.
// Old block identities do not survive; their references become orphaned
// timeline entries.
func (s *Service) ImportMarkup(_ context.Context, id string, markup []byte) (*models.Note, error) {
	if _, err := s.store.Read(notePath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	tree, err := codec.ImportMarkup(markup)
	if err != nil {
		return nil, err
	}

	d := s.doc(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = tree
	if err := s.saveLocked(d, id); err != nil {
		return nil, err
	}
	return s.noteFrom(id, d), nil
}
