// Package tags reads and writes the ID3 title, artist and album of MP3 files.
package tags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"

	"musiclib/pkg/apperror"
)

// Placeholders used when a tag is absent or unreadable.
const (
	UnknownTitle  = "Unknown Title"
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

var errNotMP3 = errors.New("missing ID3 header or MPEG frame sync")

// Metadata is the subset of ID3 fields the library tracks.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// Unknown returns metadata made of placeholders only.
func Unknown() Metadata {
	return Metadata{Title: UnknownTitle, Artist: UnknownArtist, Album: UnknownAlbum}
}

// WithDefaults substitutes placeholders for blank fields. Other values are
// kept byte for byte so Write then Read returns what was written.
func (m Metadata) WithDefaults() Metadata {
	return Metadata{
		Title:  orDefault(m.Title, UnknownTitle),
		Artist: orDefault(m.Artist, UnknownArtist),
		Album:  orDefault(m.Album, UnknownAlbum),
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// Codec is the production tag reader/writer.
type Codec struct{}

func (Codec) Read(path string) (Metadata, error)   { return Read(path) }
func (Codec) Write(path string, md Metadata) error { return Write(path, md) }

// Read extracts tags from the MP3 at path. It always returns usable metadata;
// the error is a TagParse failure when the file is not an MP3 or its ID3v2
// block is corrupt, and callers may treat it as a warning.
func Read(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Unknown(), apperror.TagParse("failed to open audio file", err)
	}
	defer f.Close()

	header, err := sniff(f)
	if err != nil {
		return Unknown(), apperror.TagParse("file is not a valid mp3", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Unknown(), apperror.TagParse("failed to rewind audio file", err)
	}
	m, err := tag.ReadFrom(f)
	if err != nil {
		// Untagged frame data, including files too short for an ID3v1 trailer.
		if errors.Is(err, tag.ErrNoTagsFound) || header != headerID3 {
			return Unknown(), nil
		}
		return Unknown(), apperror.TagParse("failed to parse id3 tags", err)
	}
	return Metadata{Title: m.Title(), Artist: m.Artist(), Album: m.Album()}.WithDefaults(), nil
}

// Write stores md as ID3v2.4 UTF-8 frames, rewriting the file in place.
func Write(path string, md Metadata) error {
	f, err := os.Open(path)
	if err != nil {
		return apperror.TagWrite("failed to open audio file", err)
	}
	_, err = sniff(f)
	_ = f.Close()
	if err != nil {
		return apperror.TagWrite("file is not a valid mp3", err)
	}

	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return apperror.TagWrite("failed to open id3 tags", err)
	}
	defer t.Close()

	t.SetVersion(4)
	t.SetDefaultEncoding(id3v2.EncodingUTF8)
	setOrDelete(t, "Title", md.Title)
	setOrDelete(t, "Artist", md.Artist)
	setOrDelete(t, "Album", md.Album)
	if err := t.Save(); err != nil {
		return apperror.TagWrite("failed to save id3 tags", err)
	}
	return nil
}

func setOrDelete(t *id3v2.Tag, field, value string) {
	id := t.CommonID(field)
	t.DeleteFrames(id)
	if strings.TrimSpace(value) != "" {
		t.AddTextFrame(id, t.DefaultEncoding(), value)
	}
}

type headerKind int

const (
	headerID3 headerKind = iota + 1
	headerFrameSync
)

// sniff checks the leading bytes for an ID3v2 header or an MPEG audio frame sync.
func sniff(r io.Reader) (headerKind, error) {
	buf := make([]byte, 3)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return 0, errNotMP3
		}
		return 0, fmt.Errorf("read header: %w", err)
	}
	buf = buf[:n]
	switch {
	case bytes.HasPrefix(buf, []byte("ID3")):
		return headerID3, nil
	case len(buf) >= 2 && buf[0] == 0xFF && buf[1]&0xE0 == 0xE0:
		return headerFrameSync, nil
	default:
		return 0, errNotMP3
	}
}
