package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"musiclib/pkg/domain"
)

// MemoryStore keeps users and songs in-process. It backs tests and the
// memory:// database URL used for local demos; data is lost on restart.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]domain.User
	songs      map[int64]domain.Song
	nextUserID int64
	nextSongID int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]domain.User),
		songs: make(map[int64]domain.Song),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	m.nextUserID++
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = m.nextUserID, now, now
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id int64) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	return m.findUser(func(u domain.User) bool { return u.Email == email })
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (domain.User, bool, error) {
	return m.findUser(func(u domain.User) bool { return u.Username == username })
}

func (m *MemoryStore) findUser(match func(domain.User) bool) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return u, true, nil
		}
	}
	return domain.User{}, false, nil
}

func (m *MemoryStore) UpdateUserProfile(_ context.Context, id int64, username, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	for otherID, other := range m.users {
		if otherID != id && (other.Username == username || other.Email == email) {
			return domain.User{}, ErrDuplicate
		}
	}
	u.Username, u.Email, u.UpdatedAt = username, email, time.Now().UTC()
	m.users[id] = u
	return u, nil
}

func (m *MemoryStore) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash, u.UpdatedAt = passwordHash, time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryStore) CreateSong(_ context.Context, s *domain.Song) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[s.OwnerID]; !ok {
		return ErrOwnerMissing
	}
	for _, existing := range m.songs {
		if existing.Filename == s.Filename {
			return ErrDuplicate
		}
	}
	m.nextSongID++
	now := time.Now().UTC()
	s.ID, s.CreatedAt, s.UpdatedAt = m.nextSongID, now, now
	m.songs[s.ID] = *s
	return nil
}

func (m *MemoryStore) GetSong(_ context.Context, id int64) (domain.Song, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.songs[id]
	return s, ok, nil
}

func (m *MemoryStore) UpdateSongMetadata(_ context.Context, id int64, title, artist, album string) (domain.Song, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.songs[id]
	if !ok {
		return domain.Song{}, ErrNotFound
	}
	s.Title, s.Artist, s.Album, s.UpdatedAt = title, artist, album, time.Now().UTC()
	m.songs[id] = s
	return s, nil
}

func (m *MemoryStore) DeleteSong(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.songs[id]; !ok {
		return ErrNotFound
	}
	delete(m.songs, id)
	return nil
}

func (m *MemoryStore) ListSongs(_ context.Context, page, pageSize int) (domain.SongPage, error) {
	return m.pageSongs(page, pageSize, func(domain.Song) bool { return true }), nil
}

func (m *MemoryStore) ListSongsByOwner(_ context.Context, ownerID int64, page, pageSize int) (domain.SongPage, error) {
	return m.pageSongs(page, pageSize, func(s domain.Song) bool { return s.OwnerID == ownerID }), nil
}

func (m *MemoryStore) pageSongs(page, pageSize int, keep func(domain.Song) bool) domain.SongPage {
	matched := m.sortedSongs(keep)
	result := domain.SongPage{Items: []domain.Song{}, Page: page, PageSize: pageSize, Total: int64(len(matched))}
	offset, ok := pageOffset(page, pageSize, result.Total)
	if !ok {
		return result
	}
	end := min(offset+pageSize, len(matched))
	result.Items = append(result.Items, matched[offset:end]...)
	return result
}

func (m *MemoryStore) SearchSongs(_ context.Context, query string, limit int) ([]domain.Song, error) {
	needle := strings.ToLower(query)
	matched := m.sortedSongs(func(s domain.Song) bool {
		return strings.Contains(strings.ToLower(s.Title), needle) ||
			strings.Contains(strings.ToLower(s.Artist), needle) ||
			strings.Contains(strings.ToLower(s.Album), needle)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) AllSongs(_ context.Context) ([]domain.Song, error) {
	return m.sortedSongs(func(domain.Song) bool { return true }), nil
}

func (m *MemoryStore) sortedSongs(keep func(domain.Song) bool) []domain.Song {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Song, 0, len(m.songs))
	for _, s := range m.songs {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
