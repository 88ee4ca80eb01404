package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"musiclib/internal/resettoken"
	"musiclib/pkg/auth"
	"musiclib/pkg/mailer"
	"musiclib/pkg/storage"
	"musiclib/pkg/store"
	"musiclib/pkg/tags"
)

const (
	defaultPageSize       = 12
	maxPageSize           = 100
	defaultMaxUploadBytes = 16 << 20
	defaultSessionTTL     = 24 * time.Hour
	maxSearchResults      = 200
	memoryDatabaseURL     = "memory://"

	// Unreferenced files younger than this may belong to an upload that has
	// not inserted its row yet.
	defaultOrphanGrace = 10 * time.Minute
)

// TagCodec reads and writes embedded audio tags.
type TagCodec interface {
	Read(path string) (tags.Metadata, error)
	Write(path string, md tags.Metadata) error
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	UploadDir      string
	MaxUploadBytes int64
	PageSize       int
	Tags           TagCodec
	SecretKey      string
	SessionTTL     time.Duration
	ResetTokenTTL  time.Duration
	Revoker        auth.TokenRevoker
	Mailer         mailer.Mailer
	PublicBaseURL  string
	OrphanGrace    time.Duration
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store          store.Store
	files          *storage.FileStore
	tags           TagCodec
	sessions       *auth.SessionManager
	resets         *resettoken.Issuer
	mail           mailer.Mailer
	validate       *validator.Validate
	maxUploadBytes int64
	pageSize       int
	publicBaseURL  string
	orphanGrace    time.Duration
}

// New constructs the application with database-backed metadata storage and filesystem file storage.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		switch strings.TrimSpace(cfg.DatabaseURL) {
		case "":
			return nil, fmt.Errorf("database URL required")
		case memoryDatabaseURL:
			dataStore = store.NewMemoryStore()
		default:
			gormStore, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init database store: %w", err)
			}
			dataStore = gormStore
		}
	}

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		return nil, err
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	revoker := cfg.Revoker
	if revoker == nil {
		revoker = auth.NewMemoryTokenRevoker()
	}
	sessions, err := auth.NewSessionManager(cfg.SecretKey, sessionTTL, revoker)
	if err != nil {
		return nil, err
	}
	resets, err := resettoken.NewIssuer(cfg.SecretKey, cfg.ResetTokenTTL)
	if err != nil {
		return nil, err
	}

	codec := cfg.Tags
	if codec == nil {
		codec = tags.Codec{}
	}
	mail := cfg.Mailer
	if mail == nil {
		mail = mailer.NewLogMailer(nil)
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	publicBaseURL := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if publicBaseURL == "" {
		publicBaseURL = "http://localhost:8080"
	}
	orphanGrace := cfg.OrphanGrace
	if orphanGrace <= 0 {
		orphanGrace = defaultOrphanGrace
	}

	return &App{
		store:          dataStore,
		files:          files,
		tags:           codec,
		sessions:       sessions,
		resets:         resets,
		mail:           mail,
		validate:       newValidator(),
		maxUploadBytes: maxUpload,
		pageSize:       clampPageSize(cfg.PageSize, defaultPageSize),
		orphanGrace:    orphanGrace,
		publicBaseURL:  publicBaseURL,
	}, nil
}

// MaxUploadBytes returns the configured per-file upload limit.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// Close releases the metadata store when it holds resources.
func (a *App) Close() error {
	if closer, ok := a.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func clampPageSize(requested, fallback int) int {
	switch {
	case requested <= 0:
		return fallback
	case requested > maxPageSize:
		return maxPageSize
	default:
		return requested
	}
}
