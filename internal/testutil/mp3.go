// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"musiclib/pkg/tags"
)

const frameLen = 417

// MP3Frames returns size bytes of MPEG-1 Layer III frame headers padded with
// silence. Decoders would reject it but it passes header sniffing.
func MP3Frames(size int) []byte {
	b := make([]byte, size)
	for i := 0; i+4 <= size; i += frameLen {
		b[i], b[i+1], b[i+2], b[i+3] = 0xFF, 0xFB, 0x90, 0x64
	}
	return b
}

// WriteMP3 writes an MP3 fixture into dir and returns its path. When md is
// non-nil its fields are written as ID3 tags.
func WriteMP3(t *testing.T, dir, name string, md *tags.Metadata) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, MP3Frames(4096), 0o644); err != nil {
		t.Fatalf("write mp3 fixture: %v", err)
	}
	if md != nil {
		if err := tags.Write(path, *md); err != nil {
			t.Fatalf("tag mp3 fixture: %v", err)
		}
	}
	return path
}

// MP3Bytes returns the bytes of a fixture built by WriteMP3.
func MP3Bytes(t *testing.T, md *tags.Metadata) []byte {
	t.Helper()
	path := WriteMP3(t, t.TempDir(), "fixture.mp3", md)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read mp3 fixture: %v", err)
	}
	return data
}
