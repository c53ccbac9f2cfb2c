// Package wav reads just enough of the RIFF/WAVE container to answer
// duration questions about captured recordings.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Info describes the format and size of a WAV file.
type Info struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	ByteRate      int
	DataBytes     int64
}

// Duration computes the playable length from the data chunk size.
func (i Info) Duration() time.Duration {
	if i.ByteRate <= 0 {
		return 0
	}
	return time.Duration(float64(i.DataBytes) / float64(i.ByteRate) * float64(time.Second))
}

// Probe opens the file at path and reads its WAV metadata.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return ReadInfo(f)
}

// ReadInfo parses the RIFF header and chunk list. It stops as soon as both
// the fmt and data chunks have been seen.
func ReadInfo(r io.ReadSeeker) (Info, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Info{}, fmt.Errorf("riff header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Info{}, errors.New("not a wav file")
	}

	var info Info
	var haveFmt, haveData bool
	for !haveFmt || !haveData {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return Info{}, fmt.Errorf("chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			var f [16]byte
			if _, err := io.ReadFull(r, f[:]); err != nil {
				return Info{}, fmt.Errorf("fmt chunk: %w", err)
			}
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.ByteRate = int(binary.LittleEndian.Uint32(f[8:12]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
			if size > 16 {
				if _, err := r.Seek(size-16, io.SeekCurrent); err != nil {
					return Info{}, err
				}
			}
		case "data":
			info.DataBytes = size
			haveData = true
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return Info{}, err
			}
		default:
			if _, err := r.Seek(size, io.SeekCurrent); err != nil {
				return Info{}, err
			}
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			if _, err := r.Seek(1, io.SeekCurrent); err != nil {
				return Info{}, err
			}
		}
	}
	if !haveFmt || !haveData {
		return Info{}, errors.New("missing fmt or data chunk")
	}
	return info, nil
}
