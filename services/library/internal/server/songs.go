package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"musiclib/pkg/domain"
	"musiclib/services/library/internal/app"
)

// multipartOverhead covers boundaries and part headers around the file part.
const multipartOverhead = 64 << 10

func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleUploadSong(w, r, user)
	case http.MethodGet:
		s.handleListSongs(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

// /songs/{id} or /songs/{id}/download
func (s *Server) handleSongByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	path := strings.TrimPrefix(r.URL.Path, "/songs/")
	parts := strings.SplitN(path, "/", 2)
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		notFound(w, "not found")
		return
	}
	if len(parts) == 2 {
		if parts[1] != "download" {
			notFound(w, "not found")
			return
		}
		s.handleDownloadSong(w, r, user, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		song, err := s.app.GetSong(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, song)
	case http.MethodPut:
		var req app.SongMetadataInput
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := s.app.UpdateSongMetadata(r.Context(), id, user.ID, req)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		if err := s.app.DeleteSong(r.Context(), id, user.ID); err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

// handleUploadSong streams the multipart "file" part straight to storage.
func (s *Server) handleUploadSong(w http.ResponseWriter, r *http.Request, user domain.User) {
	limit := s.app.MaxUploadBytes() + multipartOverhead
	if r.ContentLength > limit {
		writeAppError(w, r, app.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeAppError(w, r, app.ErrFileRequired)
			return
		}
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				writeAppError(w, r, app.ErrFileTooLarge)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid form data")
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		song, err := s.app.UploadSong(r.Context(), user.ID, part.FileName(), part, -1)
		_ = part.Close()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, song)
		return
	}
}

// GET /songs?page=N[&pageSize=M][&owner=me]
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request, user domain.User) {
	query := r.URL.Query()
	page := queryInt(query.Get("page"), 1)
	pageSize := queryInt(query.Get("pageSize"), 0)

	var (
		result domain.SongPage
		err    error
	)
	if strings.EqualFold(strings.TrimSpace(query.Get("owner")), "me") {
		result, err = s.app.ListOwnedSongs(r.Context(), user.ID, page, pageSize)
	} else {
		result, err = s.app.ListAllSongs(r.Context(), page, pageSize)
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":    result.Items,
		"page":     result.Page,
		"pageSize": result.PageSize,
		"total":    result.Total,
		"pages":    result.Pages(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	result, err := s.app.SearchSongs(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownloadSong(w http.ResponseWriter, r *http.Request, user domain.User, id int64) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w)
		return
	}
	song, f, err := s.app.OpenSongFile(r.Context(), id, user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	name := downloadName(song.Title)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", contentDisposition(name))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// downloadName builds "<title>.mp3" with characters unsafe in file names replaced.
func downloadName(title string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	clean = strings.Trim(clean, ". ")
	if clean == "" {
		clean = "song"
	}
	return clean + ".mp3"
}

// contentDisposition always quotes the filename. Non-ASCII names get an
// ASCII fallback plus an RFC 5987 filename* parameter.
func contentDisposition(name string) string {
	ascii := true
	fallback := strings.Map(func(r rune) rune {
		if r > 0x7e {
			ascii = false
			return '_'
		}
		return r
	}, name)
	header := `attachment; filename="` + fallback + `"`
	if ascii {
		return header
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return header + "; filename*=UTF-8''" + b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}

func queryInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
