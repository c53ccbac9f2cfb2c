package noteservice

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/block"
	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/testutil"
)

func TestStartStopRecording(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "meet", []byte("# Meeting")); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.StartRecording(ctx, "meet")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if rec.NoteID != "meet" || rec.FilePath == "" {
		t.Errorf("recording = %+v", rec)
	}
	if rec.DurationMs != nil {
		t.Error("duration should be unset while recording")
	}

	st := svc.SessionState()
	if st.Status != session.Active || st.RecordingID != rec.ID {
		t.Errorf("state = %+v, want active %s", st, rec.ID)
	}

	stopped, err := svc.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if stopped.DurationMs == nil || *stopped.DurationMs != 90000 {
		t.Errorf("duration = %v, want 90000", stopped.DurationMs)
	}
	if svc.SessionState().Status != session.Idle {
		t.Error("session should be idle after stop")
	}

	if !sink.has("session.started:meet") || !sink.has("session.stopped:meet") {
		t.Errorf("session events missing: %v", sink.snapshot())
	}
}

func TestStartRecordingMissingNote(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.StartRecording(context.Background(), "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if svc.SessionState().Status != session.Idle {
		t.Error("failed start must leave the session idle")
	}
}

func TestStartRecordingBusy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "a", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateNote(ctx, "b", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartRecording(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	defer svc.StopRecording(ctx)

	if _, err := svc.StartRecording(ctx, "b"); !errors.Is(err, apperr.ErrAlreadyRecording) {
		t.Errorf("err = %v, want ErrAlreadyRecording", err)
	}
}

func TestStopRecordingIdle(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.StopRecording(context.Background()); !errors.Is(err, apperr.ErrNotRecording) {
		t.Errorf("err = %v, want ErrNotRecording", err)
	}
}

func TestAutoTagWhileRecording(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "log", []byte("# Log")); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.StartRecording(ctx, "log")
	if err != nil {
		t.Fatal(err)
	}

	b1, err := svc.CreateBlock(ctx, "log", "", -1, block.Paragraph("first"))
	if err != nil {
		t.Fatal(err)
	}
	b2, err := svc.CreateBlock(ctx, "log", "", -1, block.Paragraph("second"))
	if err != nil {
		t.Fatal(err)
	}

	// Tag writes are fire-and-forget, so poll.
	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		refs, _ := svc.refs.ListReferences(rec.ID)
		return len(refs) == 2
	}, "expected 2 auto references")

	refs, err := svc.refs.ListReferences(rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("references = %d, want 2", len(refs))
	}
	tagged := map[string]bool{}
	for _, r := range refs {
		if r.Origin != refstore.OriginAuto {
			t.Errorf("origin = %q, want auto", r.Origin)
		}
		tagged[r.BlockID] = true
	}
	if !tagged[b1.ID] || !tagged[b2.ID] {
		t.Errorf("tagged blocks = %v, want %s and %s", tagged, b1.ID, b2.ID)
	}
	if refs[0].OffsetMs > refs[1].OffsetMs {
		t.Errorf("offsets out of order: %d then %d", refs[0].OffsetMs, refs[1].OffsetMs)
	}

	eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return sink.has("block.tagged:log:"+b1.ID) && sink.has("block.tagged:log:"+b2.ID)
	}, "expected tagged events for both blocks")

	if _, err := svc.StopRecording(ctx); err != nil {
		t.Fatal(err)
	}

	// Blocks created after stop are not tagged. The tagger checks the session
	// synchronously, so no write can be in flight here.
	if _, err := svc.CreateBlock(ctx, "log", "", -1, block.Paragraph("later")); err != nil {
		t.Fatal(err)
	}
	refs, _ = svc.refs.ListReferences(rec.ID)
	if len(refs) != 2 {
		t.Errorf("references after stop = %d, want 2", len(refs))
	}
}

func TestNoTaggingWhileIdle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "quiet", nil); err != nil {
		t.Fatal(err)
	}
	b, err := svc.CreateBlock(ctx, "quiet", "", -1, block.Paragraph("untagged"))
	if err != nil {
		t.Fatal(err)
	}
	refs, err := svc.refs.ReferencesForBlock(b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("idle creation produced %d references", len(refs))
	}
}

func TestTimelineMarksOrphans(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, "doc", []byte("# Doc\n\nLive one"))
	if err != nil {
		t.Fatal(err)
	}
	var liveID string
	_ = note.Tree.Walk(func(b block.Block, _ int) error {
		if b.Kind == block.KindParagraph {
			liveID = b.ID
		}
		return nil
	})

	if err := svc.refs.PutRecording(refstore.Recording{ID: "rec-1", NoteID: "doc", FilePath: "rec-1.wav"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-1", liveID, 1000); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-1", "ghost", 5000); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.Timeline(ctx, "doc")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].BlockID != liveID || entries[0].Orphaned {
		t.Errorf("live entry = %+v", entries[0])
	}
	if entries[0].Kind != "paragraph" || entries[0].Text != "Live one" {
		t.Errorf("live entry content = %q / %q", entries[0].Kind, entries[0].Text)
	}
	if !entries[1].Orphaned {
		t.Error("ghost entry should be orphaned")
	}
}

func TestResolveClipBounds(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	dur := int64(90000)
	if err := svc.refs.PutRecording(refstore.Recording{ID: "rec-1", NoteID: "doc", FilePath: "rec-1.wav", DurationMs: &dur}); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-1", "blk-a", 1000); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-1", "blk-b", 5000); err != nil {
		t.Fatal(err)
	}

	// blk-a ends where the next reference begins.
	clip, err := svc.ResolveClip(ctx, "", "blk-a")
	if err != nil {
		t.Fatalf("ResolveClip blk-a: %v", err)
	}
	if clip.StartMs != 1000 || clip.EndMs != 5000 {
		t.Errorf("blk-a clip = %d..%d, want 1000..5000", clip.StartMs, clip.EndMs)
	}

	// blk-b is the last reference, so it runs to the recording's end.
	clip, err = svc.ResolveClip(ctx, "", "blk-b")
	if err != nil {
		t.Fatalf("ResolveClip blk-b: %v", err)
	}
	if clip.StartMs != 5000 || clip.EndMs != 90000 {
		t.Errorf("blk-b clip = %d..%d, want 5000..90000", clip.StartMs, clip.EndMs)
	}

	// An explicit end offset wins over both.
	end := int64(20000)
	if _, err := svc.refs.PutManualReference("rec-1", "blk-c", 10000, &end); err != nil {
		t.Fatal(err)
	}
	clip, err = svc.ResolveClip(ctx, "", "blk-c")
	if err != nil {
		t.Fatalf("ResolveClip blk-c: %v", err)
	}
	if clip.StartMs != 10000 || clip.EndMs != 20000 {
		t.Errorf("blk-c clip = %d..%d, want 10000..20000", clip.StartMs, clip.EndMs)
	}

	if _, err := svc.ResolveClip(ctx, "", "unknown"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown block err = %v, want ErrNotFound", err)
	}
}

func TestResolveClipOpenEnded(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Recording still running: no duration yet, single reference.
	if err := svc.refs.PutRecording(refstore.Recording{ID: "rec-live", NoteID: "doc", FilePath: "live.wav"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-live", "blk", 3000); err != nil {
		t.Fatal(err)
	}

	clip, err := svc.ResolveClip(ctx, "", "blk")
	if err != nil {
		t.Fatalf("ResolveClip: %v", err)
	}
	if clip.StartMs != 3000 || clip.EndMs != 0 {
		t.Errorf("clip = %d..%d, want 3000..0 (open ended)", clip.StartMs, clip.EndMs)
	}
}

func TestResolveClipPicksRequestedRecording(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"rec-1", "rec-2"} {
		if err := svc.refs.PutRecording(refstore.Recording{ID: id, NoteID: "doc", FilePath: id + ".wav"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.refs.PutAutoReference("rec-1", "blk", 1000); err != nil {
		t.Fatal(err)
	}
	if err := svc.refs.PutAutoReference("rec-2", "blk", 7000); err != nil {
		t.Fatal(err)
	}

	clip, err := svc.ResolveClip(ctx, "rec-2", "blk")
	if err != nil {
		t.Fatalf("ResolveClip: %v", err)
	}
	if clip.RecordingID != "rec-2" || clip.StartMs != 7000 {
		t.Errorf("clip = %+v, want rec-2 at 7000", clip)
	}
}

func TestAddManualReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddManualReference(ctx, "ghost", "blk", 0, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown recording err = %v, want ErrNotFound", err)
	}

	if err := svc.refs.PutRecording(refstore.Recording{ID: "rec-1", NoteID: "doc", FilePath: "rec-1.wav"}); err != nil {
		t.Fatal(err)
	}
	end := int64(9000)
	ref, err := svc.AddManualReference(ctx, "rec-1", "blk", 4000, &end)
	if err != nil {
		t.Fatalf("AddManualReference: %v", err)
	}
	if ref.Origin != refstore.OriginManual || ref.OffsetMs != 4000 || ref.EndOffsetMs == nil || *ref.EndOffsetMs != 9000 {
		t.Errorf("reference = %+v", ref)
	}
}

func TestRecordingReferencesUnknownRecording(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.RecordingReferences(context.Background(), "ghost"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestImportAudio(t *testing.T) {
	svc, _, _, recDir := newTestServiceFull(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "doc", []byte("# Doc")); err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "in.wav")
	testutil.WriteWAV(t, src, 30*time.Second)
	f, err := os.Open(src)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rec, err := svc.ImportAudio(ctx, "doc", f)
	if err != nil {
		t.Fatalf("ImportAudio: %v", err)
	}
	if rec.DurationMs == nil || *rec.DurationMs != 30000 {
		t.Errorf("duration = %v, want 30000", rec.DurationMs)
	}
	if filepath.Dir(rec.FilePath) != recDir {
		t.Errorf("file landed in %s, want %s", filepath.Dir(rec.FilePath), recDir)
	}

	path, err := svc.AudioPath(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AudioPath: %v", err)
	}
	if path != rec.FilePath {
		t.Errorf("path = %q, want %q", path, rec.FilePath)
	}
}

func TestImportAudioRejectsGarbage(t *testing.T) {
	svc, _, _, recDir := newTestServiceFull(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "doc", nil); err != nil {
		t.Fatal(err)
	}
	_, err := svc.ImportAudio(ctx, "doc", bytes.NewReader([]byte("definitely not riff")))
	if !errors.Is(err, apperr.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}

	// The rejected upload must not leave a file behind.
	entries, err := os.ReadDir(recDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("recording dir has %d leftover files", len(entries))
	}
}

func TestImportAudioMissingNote(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ImportAudio(context.Background(), "ghost", bytes.NewReader(nil))
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestAudioPathMissingFile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.refs.PutRecording(refstore.Recording{ID: "rec-1", NoteID: "doc", FilePath: "/nonexistent/rec-1.wav"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AudioPath(ctx, "rec-1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
