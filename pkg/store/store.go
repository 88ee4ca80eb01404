package store

import (
	"context"
	"errors"

	"musiclib/pkg/domain"
)

var (
	// ErrNotFound is returned when an update or delete matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
	// ErrOwnerMissing is returned when a song references a user that does not exist.
	ErrOwnerMissing = errors.New("song owner does not exist")
)

// Store defines persistence operations for users and songs.
// Lookups return ok=false rather than an error when nothing matches.
type Store interface {
	// users
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error)
	UpdateUserProfile(ctx context.Context, id int64, username, email string) (domain.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error

	// songs
	CreateSong(ctx context.Context, s *domain.Song) error
	GetSong(ctx context.Context, id int64) (domain.Song, bool, error)
	UpdateSongMetadata(ctx context.Context, id int64, title, artist, album string) (domain.Song, error)
	DeleteSong(ctx context.Context, id int64) error
	ListSongs(ctx context.Context, page, pageSize int) (domain.SongPage, error)
	ListSongsByOwner(ctx context.Context, ownerID int64, page, pageSize int) (domain.SongPage, error)
	SearchSongs(ctx context.Context, query string, limit int) ([]domain.Song, error)
	AllSongs(ctx context.Context) ([]domain.Song, error)
}
