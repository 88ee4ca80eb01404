package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

var storageNamePattern = regexp.MustCompile(`^[0-9a-f]{32}\.mp3$`)

func TestNewStorageName(t *testing.T) {
	tests := []struct {
		original string
		wantErr  bool
	}{
		{original: "song.mp3"},
		{original: "Loud.MP3"},
		{original: "dir/sub/track.Mp3"},
		{original: "cover.jpg", wantErr: true},
		{original: "noext", wantErr: true},
		{original: "", wantErr: true},
		{original: "archive.mp3.zip", wantErr: true},
	}
	for _, tc := range tests {
		name, err := NewStorageName(tc.original)
		if tc.wantErr {
			if !errors.Is(err, ErrUnsupportedExtension) {
				t.Fatalf("%q: expected ErrUnsupportedExtension, got %v", tc.original, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tc.original, err)
		}
		if !storageNamePattern.MatchString(name) {
			t.Fatalf("%q: bad storage name %q", tc.original, name)
		}
	}
}

func TestNewStorageNameIsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		name, err := NewStorageName("a.mp3")
		if err != nil {
			t.Fatalf("name: %v", err)
		}
		if _, dup := seen[name]; dup {
			t.Fatalf("duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
}

func TestSaveAndRemove(t *testing.T) {
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	payload := bytes.Repeat([]byte{0xAB}, 1024)
	n, err := fs.Save("abc.mp3", bytes.NewReader(payload), 4096)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("expected %d bytes, got %d", len(payload), n)
	}
	path, _ := fs.Path("abc.mp3")
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("stored bytes mismatch: %v", err)
	}
	names, err := fs.List()
	if err != nil || len(names) != 1 || names[0] != "abc.mp3" {
		t.Fatalf("unexpected listing %v %v", names, err)
	}

	if err := fs.Remove("abc.mp3"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ok, _ := fs.Exists("abc.mp3"); ok {
		t.Fatalf("expected file to be gone")
	}
	if err := fs.Remove("abc.mp3"); err != nil {
		t.Fatalf("removing an absent file should succeed, got %v", err)
	}
}

func TestSaveRejectsOversizedStream(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	_, err = fs.Save("big.mp3", strings.NewReader(strings.Repeat("x", 101)), 100)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftovers, found %d entries", len(entries))
	}
}

func TestSaveAllowsExactLimit(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := fs.Save("edge.mp3", strings.NewReader(strings.Repeat("x", 100)), 100); err != nil {
		t.Fatalf("expected exact-size file to be accepted, got %v", err)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.mp3", `a\b.mp3`, ".hidden.mp3"} {
		if _, err := fs.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".x.mp3.123.part"), []byte("partial"), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	names, err := fs.List()
	if err != nil || len(names) != 0 {
		t.Fatalf("expected empty listing, got %v %v", names, err)
	}
}

func TestSaveFailsWhenDirUnwritable(t *testing.T) {
	base := filepath.Join(t.TempDir(), "uploads")
	fs, err := NewFileStore(base)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.RemoveAll(base); err != nil {
		t.Fatalf("remove dir: %v", err)
	}
	if err := os.WriteFile(base, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := fs.Save("abc.mp3", strings.NewReader("data"), 0); err == nil {
		t.Fatalf("expected save error")
	}
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(fs.Root(), "abc.mp3", "inner"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := fs.Remove("abc.mp3"); err == nil {
		t.Fatalf("expected remove error")
	}
}

func TestModTime(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	if _, err := fs.Save("abc.mp3", strings.NewReader("data"), 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	when := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	path, _ := fs.Path("abc.mp3")
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	got, err := fs.ModTime("abc.mp3")
	if err != nil || !got.Equal(when) {
		t.Fatalf("ModTime = %v, %v; want %v", got, err, when)
	}
	if _, err := fs.ModTime("missing.mp3"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
