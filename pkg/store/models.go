package store

import (
	"time"

	"musiclib/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:20;uniqueIndex;not null"`
	Email        string    `gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:60;not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type SongModel struct {
	ID        int64      `gorm:"primaryKey;autoIncrement"`
	Title     string     `gorm:"size:150;not null"`
	Artist    string     `gorm:"size:50;not null"`
	Album     string     `gorm:"size:50"`
	Filename  string     `gorm:"size:150;uniqueIndex;not null"`
	OwnerID   int64      `gorm:"not null;index"`
	Owner     *UserModel `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	CreatedAt time.Time  `gorm:"not null"`
	UpdatedAt time.Time  `gorm:"not null"`
}

func (SongModel) TableName() string { return "songs" }

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func songToModel(s domain.Song) SongModel {
	return SongModel{
		ID:        s.ID,
		Title:     s.Title,
		Artist:    s.Artist,
		Album:     s.Album,
		Filename:  s.Filename,
		OwnerID:   s.OwnerID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func songFromModel(m SongModel) domain.Song {
	return domain.Song{
		ID:        m.ID,
		Title:     m.Title,
		Artist:    m.Artist,
		Album:     m.Album,
		Filename:  m.Filename,
		OwnerID:   m.OwnerID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func songsFromModels(models []SongModel) []domain.Song {
	out := make([]domain.Song, 0, len(models))
	for _, m := range models {
		out = append(out, songFromModel(m))
	}
	return out
}
