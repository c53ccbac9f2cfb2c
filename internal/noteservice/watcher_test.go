package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/block"
)

// startWatcher runs the vault watcher for the duration of the test. The
// short sleep lets the fsnotify registration settle before the test writes.
func startWatcher(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	go func() { _ = svc.Watch(ctx, logger) }()
	time.Sleep(100 * time.Millisecond)
}

func TestWatchExternalCreate(t *testing.T) {
	svc, sink, vaultDir, _ := newTestServiceFull(t)
	startWatcher(t, svc)

	data := snapshotBytes(t, block.Heading(1, "Dropped In"))
	if err := os.WriteFile(filepath.Join(vaultDir, "ext.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.created:ext")
	}, "expected doc.created:ext")

	note, err := svc.GetNote(context.Background(), "ext")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if note.Title != "Dropped In" {
		t.Errorf("title = %q", note.Title)
	}
}

func TestWatchOwnWriteIsUpdated(t *testing.T) {
	svc, sink, _, _ := newTestServiceFull(t)
	ctx := context.Background()

	// Created before the watcher starts, so it is known from the seed pass.
	if _, err := svc.CreateNote(ctx, "mine", []byte("# Mine")); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, svc)

	if _, err := svc.CreateBlock(ctx, "mine", "", -1, block.Paragraph("more")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.updated:mine")
	}, "expected doc.updated:mine")

	// An atomic save renames a temp file into place, which fsnotify reports
	// as Create. Known ids must still classify it as an update.
	if sink.has("doc.created:mine") {
		t.Error("own save of an existing note must not publish created")
	}
}

func TestWatchOwnCreatePublishes(t *testing.T) {
	svc, sink, _, _ := newTestServiceFull(t)
	startWatcher(t, svc)

	if _, err := svc.CreateNote(context.Background(), "fresh", []byte("# Fresh")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.created:fresh")
	}, "expected doc.created:fresh")
}

func TestWatchExternalDelete(t *testing.T) {
	svc, sink, vaultDir, _ := newTestServiceFull(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "gone", []byte("# Gone")); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, svc)

	if err := os.Remove(filepath.Join(vaultDir, "gone.json")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.deleted:gone")
	}, "expected doc.deleted:gone")

	if _, err := svc.GetNote(ctx, "gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after external delete err = %v, want ErrNotFound", err)
	}
}

func TestWatchRenameReconciles(t *testing.T) {
	svc, sink, vaultDir, _ := newTestServiceFull(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "before", []byte("# Same")); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, svc)

	if err := os.Rename(filepath.Join(vaultDir, "before.json"), filepath.Join(vaultDir, "after.json")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.deleted:before") && sink.has("doc.created:after")
	}, "expected deleted:before and created:after")

	note, err := svc.GetNote(ctx, "after")
	if err != nil {
		t.Fatalf("GetNote after rename: %v", err)
	}
	if note.Title != "Same" {
		t.Errorf("title = %q", note.Title)
	}
}

func TestWatchNewDirAbsorbed(t *testing.T) {
	svc, sink, vaultDir, _ := newTestServiceFull(t)
	startWatcher(t, svc)

	subDir := filepath.Join(vaultDir, "sub")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	data := snapshotBytes(t, block.Heading(1, "Deep"))
	if err := os.WriteFile(filepath.Join(subDir, "deep.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.created:sub/deep")
	}, "expected doc.created:sub/deep from new directory")
}

func TestWatchCorruptSnapshotKeepsLastGood(t *testing.T) {
	svc, sink, vaultDir, _ := newTestServiceFull(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "doc", []byte("# Good")); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, svc)

	if err := os.WriteFile(filepath.Join(vaultDir, "doc.json"), []byte("{corrupt"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A valid write to a second file orders the observation: once it is
	// absorbed, the corrupt event before it has been processed too.
	if err := os.WriteFile(filepath.Join(vaultDir, "sentinel.json"), snapshotBytes(t, block.Paragraph("ok")), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return sink.has("doc.created:sentinel")
	}, "expected sentinel to be absorbed")

	if sink.has("doc.updated:doc") {
		t.Error("corrupt snapshot must not publish an update")
	}
	note, err := svc.GetNote(ctx, "doc")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if note.Title != "Good" {
		t.Errorf("cached title = %q, want Good (last good state)", note.Title)
	}
}
