// Package storage keeps uploaded audio files on the local filesystem under
// random, collision-free names.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"musiclib/internal/util"
)

// Extension is the only accepted audio file extension.
const Extension = ".mp3"

const nameRandomBytes = 16

var (
	// ErrTooLarge is returned by Save when the stream exceeds maxBytes.
	ErrTooLarge = errors.New("file exceeds maximum size")
	// ErrUnsupportedExtension is returned for names not ending in .mp3.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	// ErrInvalidName rejects names that could escape the upload directory.
	ErrInvalidName = errors.New("invalid storage name")
)

// FileStore saves uploaded files to disk under a base directory.
type FileStore struct {
	basePath string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: abs}, nil
}

// Root returns the absolute upload directory.
func (f *FileStore) Root() string {
	return f.basePath
}

// NewStorageName derives a fresh random name keeping the original's
// extension (lower-cased). Only .mp3 is accepted.
func NewStorageName(original string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(strings.TrimSpace(original))))
	if ext != Extension {
		return "", ErrUnsupportedExtension
	}
	random, err := util.RandomHex(nameRandomBytes)
	if err != nil {
		return "", err
	}
	return random + ext, nil
}

// Path resolves a storage name to its absolute path.
func (f *FileStore) Path(name string) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	return filepath.Join(f.basePath, name), nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}

// Save streams r to name. Bytes are written to a hidden temp file and renamed
// into place, so a failed or oversized upload never leaves a partial file
// under the final name. maxBytes <= 0 disables the size check.
func (f *FileStore) Save(name string, r io.Reader, maxBytes int64) (int64, error) {
	target, err := f.Path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(f.basePath, 0o755); err != nil {
		return 0, fmt.Errorf("create storage dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.basePath, "."+name+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return n, fmt.Errorf("write file: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return n, ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return n, fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return n, fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return n, fmt.Errorf("commit file: %w", err)
	}
	committed = true
	return n, nil
}

// Open opens a stored file for reading.
func (f *FileStore) Open(name string) (*os.File, error) {
	path, err := f.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Exists reports whether a stored file is present.
func (f *FileStore) Exists(name string) (bool, error) {
	path, err := f.Path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ModTime returns the last modification time of a stored file.
func (f *FileStore) ModTime(name string) (time.Time, error) {
	path, err := f.Path(name)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Remove deletes a stored file. A missing file counts as removed.
func (f *FileStore) Remove(name string) error {
	path, err := f.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// List returns the stored file names, skipping directories and in-flight
// temp files.
func (f *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list storage dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
