package noteservice

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/codec"
	"github.com/starford/ansuz/internal/storage"
)

// vaultWatcher tracks what the watcher goroutine believes is on disk.
// known maps note id to the checksum last absorbed, which both dedupes
// repeated fsnotify events for the same content (including the service's
// own writes) and distinguishes created from updated.
type vaultWatcher struct {
	svc    *Service
	logger *slog.Logger
	known  map[string]string
}

// Watch starts an fsnotify watcher on the vault root and keeps the open
// document cache and SSE clients in sync until ctx is cancelled. Every
// doc.created/doc.updated/doc.deleted event originates here; the service's
// own writes loop back through this path.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced reconciliation pass that catches
// files whose new location arrived without a matching event.
func (s *Service) Watch(ctx context.Context, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, s.root); err != nil {
		return err
	}

	vw := &vaultWatcher{svc: s, logger: logger, known: make(map[string]string)}
	if metas, err := s.store.List(""); err == nil {
		for _, m := range metas {
			vw.known[m.ID] = m.Checksum
		}
	}

	logger.Info("watcher: started", slog.String("root", s.root))

	// reconcileTimer is used to debounce rename reconciliation.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			vw.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			// --- Handle new directories: add to watcher ---
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					// Absorb any snapshots already in the new directory.
					vw.absorbDir(absPath)
					continue
				}
			}

			// Only process snapshot documents from here on.
			id, ok := vw.noteID(absPath)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				vw.absorb(id)

			case ev.Op&fsnotify.Remove != 0:
				vw.drop(id)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only. The new path
				// will arrive as a separate Create event (if it stays within
				// a watched dir). Drop the old id now and schedule a short
				// reconciliation pass to catch any stragglers.
				vw.drop(id)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// noteID maps an absolute snapshot path to a note id.
func (vw *vaultWatcher) noteID(absPath string) (string, bool) {
	if !strings.HasSuffix(absPath, storage.SnapshotExt) {
		return "", false
	}
	rel, err := filepath.Rel(vw.svc.root, absPath)
	if err != nil {
		return "", false
	}
	return strings.TrimSuffix(filepath.ToSlash(rel), storage.SnapshotExt), true
}

// absorb reads a changed snapshot, validates it, refreshes the document
// cache, and publishes the change. Content identical to what was last
// absorbed is skipped, so the duplicate events fsnotify delivers for a
// single write collapse into one publish.
func (vw *vaultWatcher) absorb(id string) {
	s := vw.svc

	data, err := s.store.Read(notePath(id))
	if err != nil {
		vw.logger.Warn("watcher: read failed", slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	cs := checksum.Sum(data)
	if vw.known[id] == cs {
		return
	}

	tree, err := codec.DecodeSnapshot(data)
	if err != nil {
		// Corrupt external edit. Keep serving the last good state.
		vw.logger.Warn("watcher: snapshot rejected", slog.String("id", id), slog.String("error", err.Error()))
		return
	}

	kind := "updated"
	if _, ok := vw.known[id]; !ok {
		kind = "created"
	}
	vw.known[id] = cs

	d := s.doc(id)
	d.mu.Lock()
	if d.checksum != cs {
		d.tree = tree
		d.checksum = cs
		d.updated = time.Now()
	}
	d.mu.Unlock()

	vw.logger.Debug("watcher: absorbed", slog.String("id", id), slog.String("op", kind))
	if s.sink != nil {
		s.sink.PublishDocEvent(kind, id)
	}
}

// drop forgets a note that disappeared from disk.
func (vw *vaultWatcher) drop(id string) {
	if _, ok := vw.known[id]; !ok {
		return
	}
	delete(vw.known, id)
	vw.svc.evict(id)
	vw.logger.Debug("watcher: dropped", slog.String("id", id))
	if vw.svc.sink != nil {
		vw.svc.sink.PublishDocEvent("deleted", id)
	}
}

// reconcile does a lightweight sync after renames: absorbs on-disk files the
// event stream missed and drops entries whose files no longer exist.
func (vw *vaultWatcher) reconcile() {
	metas, err := vw.svc.store.List("")
	if err != nil {
		vw.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.ID] = m.Checksum
	}

	for id := range vw.known {
		if _, ok := disk[id]; !ok {
			vw.drop(id)
		}
	}
	for id, cs := range disk {
		if vw.known[id] != cs {
			vw.absorb(id)
		}
	}
}

// absorbDir absorbs any snapshots found in a newly created directory.
func (vw *vaultWatcher) absorbDir(dirPath string) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if id, ok := vw.noteID(path); ok {
			vw.absorb(id)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
