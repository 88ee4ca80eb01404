package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"musiclib/internal/util"
	"musiclib/pkg/apperror"
	"musiclib/pkg/domain"
	"musiclib/pkg/storage"
	"musiclib/pkg/store"
	"musiclib/pkg/tags"
)

const tagsOutOfSyncWarning = "Song details were saved, but the file's embedded tags could not be updated."

// MetadataUpdate is the outcome of a metadata edit. TagsInSync is false when
// the row was updated but rewriting the file's tags failed.
type MetadataUpdate struct {
	Song       domain.Song `json:"song"`
	TagsInSync bool        `json:"tagsInSync"`
	Warning    string      `json:"warning,omitempty"`
}

// UploadSong validates and stores an MP3, extracts its tags and records a
// song owned by ownerID. size is the declared length, or -1 when unknown.
// The returned metadata is provisional until the owner confirms it with
// UpdateSongMetadata.
func (a *App) UploadSong(ctx context.Context, ownerID int64, filename string, body io.Reader, size int64) (domain.Song, error) {
	logger := util.LoggerFromContext(ctx)
	in := upload{filename: filename, body: body, size: size}
	for _, rule := range a.uploadRules() {
		if err := rule(in); err != nil {
			return domain.Song{}, err
		}
	}

	name, err := storage.NewStorageName(filename)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedExtension) {
			return domain.Song{}, ErrUnsupportedFileType
		}
		return domain.Song{}, apperror.Internal("failed to name upload", err)
	}
	if _, err := a.files.Save(name, body, a.maxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.Is(err, storage.ErrTooLarge) || errors.As(err, &maxBytesErr) {
			return domain.Song{}, ErrFileTooLarge
		}
		logger.Error("store upload failed", "err", err)
		return domain.Song{}, apperror.Storage("failed to store file", err)
	}

	md := tags.Unknown()
	if path, err := a.files.Path(name); err == nil {
		md, err = a.tags.Read(path)
		if err != nil {
			logger.Warn("read tags failed, using placeholders", "file", name, "err", err)
		}
	}
	song := domain.Song{
		Title:    truncateRunes(strings.TrimSpace(md.Title), maxTitleLen),
		Artist:   truncateRunes(strings.TrimSpace(md.Artist), maxArtistLen),
		Album:    truncateRunes(strings.TrimSpace(md.Album), maxAlbumLen),
		Filename: name,
		OwnerID:  ownerID,
	}
	if err := a.store.CreateSong(ctx, &song); err != nil {
		if rmErr := a.files.Remove(name); rmErr != nil {
			logger.Error("remove orphaned upload failed", "file", name, "err", rmErr)
		}
		if errors.Is(err, store.ErrOwnerMissing) {
			return domain.Song{}, ErrUnauthorized
		}
		return domain.Song{}, apperror.Internal("failed to save song", err)
	}
	logger.Info("song uploaded", "song_id", song.ID, "owner_id", ownerID)
	return song, nil
}

// UpdateSongMetadata replaces title, artist and album of a song the caller
// owns, then rewrites the file's tags to match.
func (a *App) UpdateSongMetadata(ctx context.Context, songID, callerID int64, in SongMetadataInput) (MetadataUpdate, error) {
	if _, err := a.authorizeSong(ctx, songID, callerID); err != nil {
		return MetadataUpdate{}, err
	}
	in = in.normalized()
	if err := a.validateStruct(in); err != nil {
		return MetadataUpdate{}, err
	}
	song, err := a.store.UpdateSongMetadata(ctx, songID, in.Title, in.Artist, in.Album)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return MetadataUpdate{}, ErrSongNotFound
		}
		return MetadataUpdate{}, apperror.Internal("failed to update song", err)
	}

	result := MetadataUpdate{Song: song, TagsInSync: true}
	path, err := a.files.Path(song.Filename)
	if err == nil {
		err = a.tags.Write(path, tags.Metadata{Title: song.Title, Artist: song.Artist, Album: song.Album})
	}
	if err != nil {
		util.LoggerFromContext(ctx).Warn("write tags failed, row and file diverge", "song_id", song.ID, "err", err)
		result.TagsInSync = false
		result.Warning = tagsOutOfSyncWarning
	}
	return result, nil
}

// DeleteSong removes the audio file and then the row of a song the caller owns.
func (a *App) DeleteSong(ctx context.Context, songID, callerID int64) error {
	song, err := a.authorizeSong(ctx, songID, callerID)
	if err != nil {
		return err
	}
	if err := a.files.Remove(song.Filename); err != nil {
		util.LoggerFromContext(ctx).Error("remove song file failed", "song_id", song.ID, "err", err)
		return apperror.Storage("failed to delete song file", err)
	}
	if err := a.store.DeleteSong(ctx, song.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSongNotFound
		}
		return apperror.Internal("failed to delete song", err)
	}
	util.LoggerFromContext(ctx).Info("song deleted", "song_id", song.ID, "owner_id", callerID)
	return nil
}

// GetSong returns any song by id; the collection is visible to every user.
func (a *App) GetSong(ctx context.Context, songID int64) (domain.Song, error) {
	song, ok, err := a.store.GetSong(ctx, songID)
	if err != nil {
		return domain.Song{}, apperror.Internal("failed to load song", err)
	}
	if !ok {
		return domain.Song{}, ErrSongNotFound
	}
	return song, nil
}

// OpenSongFile opens the audio of a song the caller owns. The caller closes the file.
func (a *App) OpenSongFile(ctx context.Context, songID, callerID int64) (domain.Song, *os.File, error) {
	song, err := a.authorizeSong(ctx, songID, callerID)
	if err != nil {
		return domain.Song{}, nil, err
	}
	f, err := a.files.Open(song.Filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			util.LoggerFromContext(ctx).Warn("song row without file", "song_id", song.ID)
			return domain.Song{}, nil, ErrSongFileMissing
		}
		return domain.Song{}, nil, apperror.Storage("failed to open song file", err)
	}
	return song, f, nil
}

// ListOwnedSongs returns one page of the owner's songs.
func (a *App) ListOwnedSongs(ctx context.Context, ownerID int64, page, pageSize int) (domain.SongPage, error) {
	result, err := a.store.ListSongsByOwner(ctx, ownerID, page, clampPageSize(pageSize, a.pageSize))
	if err != nil {
		return domain.SongPage{}, apperror.Internal("failed to list songs", err)
	}
	return result, nil
}

// ListAllSongs returns one page of every user's songs.
func (a *App) ListAllSongs(ctx context.Context, page, pageSize int) (domain.SongPage, error) {
	result, err := a.store.ListSongs(ctx, page, clampPageSize(pageSize, a.pageSize))
	if err != nil {
		return domain.SongPage{}, apperror.Internal("failed to list songs", err)
	}
	return result, nil
}

// SearchSongs finds songs whose title, artist or album contains query.
func (a *App) SearchSongs(ctx context.Context, query string) (domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchResult{NoQuery: true, Items: []domain.Song{}}, nil
	}
	items, err := a.store.SearchSongs(ctx, query, maxSearchResults)
	if err != nil {
		return domain.SearchResult{}, apperror.Internal("failed to search songs", err)
	}
	return domain.SearchResult{Query: query, Items: items}, nil
}

func (a *App) authorizeSong(ctx context.Context, songID, callerID int64) (domain.Song, error) {
	song, err := a.GetSong(ctx, songID)
	if err != nil {
		return domain.Song{}, err
	}
	if !song.OwnedBy(callerID) {
		return domain.Song{}, ErrForbidden
	}
	return song, nil
}
