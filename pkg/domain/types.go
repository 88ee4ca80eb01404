package domain

import "time"

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Song is an uploaded track. Filename is the storage name of the audio file.
type Song struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Album     string    `json:"album"`
	Filename  string    `json:"-"`
	OwnerID   int64     `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// OwnedBy reports whether userID owns the song.
func (s Song) OwnedBy(userID int64) bool {
	return s.OwnerID == userID
}

// SongPage is one page of songs ordered by id.
type SongPage struct {
	Items    []Song `json:"items"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
	Total    int64  `json:"total"`
}

// Pages returns the number of pages needed for Total.
func (p SongPage) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 0
	}
	return int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
}

// SearchResult holds matches for a free-text query. NoQuery is set when the
// query was empty after trimming and no search ran.
type SearchResult struct {
	Query   string `json:"query"`
	NoQuery bool   `json:"noQuery"`
	Items   []Song `json:"items"`
}
