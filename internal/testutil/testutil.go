// Package testutil provides shared test helpers for setting up vaults,
// databases, and audio fixtures.
package testutil

import (
	"encoding/binary"
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/refstore"
	"github.com/starford/ansuz/internal/storage"
)

// TestDB creates a temporary SQLite reference store that is automatically
// cleaned up.
func TestDB(t *testing.T) *refstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := refstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteWAV writes a minimal valid 48kHz stereo 16-bit wav file whose data
// chunk spans the given duration. The samples are silence.
func WriteWAV(t *testing.T, path string, d time.Duration) {
	t.Helper()
	const (
		channels      = 2
		sampleRate    = 48000
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	dataLen := int(d.Seconds() * float64(byteRate))
	// Keep fixtures small. The header alone carries the duration, so cap the
	// actual payload and patch the declared sizes.
	payload := dataLen
	if payload > 4096 {
		payload = 4096
	}

	buf := make([]byte, 0, 44+payload)
	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataLen))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, channels)
	buf = binary.LittleEndian.AppendUint32(buf, sampleRate)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(byteRate))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels*bitsPerSample/8))
	buf = binary.LittleEndian.AppendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataLen))
	buf = append(buf, make([]byte, payload)...)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
}
