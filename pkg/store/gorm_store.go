package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"musiclib/pkg/domain"
)

const migrateLockID int64 = 61311337

// sqliteDriver is go-sqlite3 with a Unicode-aware fold() registered on every
// connection. SQLite's built-in LOWER only folds ASCII.
const sqliteDriver = "sqlite3_musiclib"

var registerSQLite sync.Once

func sqliteDialector(dsn string) gorm.Dialector {
	registerSQLite.Do(func() {
		sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("fold", strings.ToLower, true)
			},
		})
	})
	return sqlite.New(sqlite.Config{DriverName: sqliteDriver, DSN: dsn})
}

// GormStore implements Store using GORM on Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
	// lower is the SQL function used for case-insensitive search.
	lower string
}

// NewGormStore opens the DB named by dsn and runs auto-migrations.
// postgres:// and postgresql:// URLs (or key=value DSNs with host=) select
// Postgres; sqlite://<path>, file: URIs and :memory: select SQLite.
func NewGormStore(dsn string) (*GormStore, error) {
	dialector, isSQLite, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &SongModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// One connection keeps :memory: databases alive and serialises writers.
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
		err = migrate(db)
	} else {
		err = withMigrationLock(db, migrate)
	}
	if err != nil {
		return nil, err
	}
	lower := "LOWER"
	if isSQLite {
		lower = "fold"
	}
	return &GormStore{db: db, lower: lower}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqliteDialector(strings.TrimPrefix(dsn, "sqlite://")), true, nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqliteDialector(dsn), true, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), false, nil
	case dsn == "":
		return nil, false, errors.New("database URL required")
	default:
		return nil, false, fmt.Errorf("unsupported database URL scheme")
	}
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return ErrDuplicate
	case errors.Is(err, gorm.ErrForeignKeyViolated),
		strings.Contains(err.Error(), "FOREIGN KEY constraint failed"):
		return ErrOwnerMissing
	default:
		return err
	}
}

// CreateUser inserts u and fills in its ID and timestamps.
func (s *GormStore) CreateUser(ctx context.Context, u *domain.User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	model := userToModel(*u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err)
	}
	u.ID = model.ID
	return nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (domain.User, bool, error) {
	return s.findUser(ctx, "username = ?", username)
}

func (s *GormStore) findUser(ctx context.Context, query string, arg any) (domain.User, bool, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Where(query, arg).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) UpdateUserProfile(ctx context.Context, id int64, username, email string) (domain.User, error) {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(map[string]any{
		"username":   username,
		"email":      email,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.User{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.User{}, ErrNotFound
	}
	u, ok, err := s.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return u, nil
}

func (s *GormStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res := s.db.WithContext(ctx).Model(&UserModel{}).Where("id = ?", id).Updates(map[string]any{
		"password_hash": passwordHash,
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSong inserts s and fills in its ID and timestamps.
func (s *GormStore) CreateSong(ctx context.Context, song *domain.Song) error {
	now := time.Now().UTC()
	song.CreatedAt, song.UpdatedAt = now, now
	model := songToModel(*song)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translate(err)
	}
	song.ID = model.ID
	return nil
}

func (s *GormStore) GetSong(ctx context.Context, id int64) (domain.Song, bool, error) {
	var model SongModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Song{}, false, nil
	}
	if err != nil {
		return domain.Song{}, false, err
	}
	return songFromModel(model), true, nil
}

func (s *GormStore) UpdateSongMetadata(ctx context.Context, id int64, title, artist, album string) (domain.Song, error) {
	res := s.db.WithContext(ctx).Model(&SongModel{}).Where("id = ?", id).Updates(map[string]any{
		"title":      title,
		"artist":     artist,
		"album":      album,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return domain.Song{}, res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Song{}, ErrNotFound
	}
	song, ok, err := s.GetSong(ctx, id)
	if err != nil {
		return domain.Song{}, err
	}
	if !ok {
		return domain.Song{}, ErrNotFound
	}
	return song, nil
}

// DeleteSong removes the row; a second delete of the same id reports ErrNotFound.
func (s *GormStore) DeleteSong(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&SongModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListSongs(ctx context.Context, page, pageSize int) (domain.SongPage, error) {
	return s.pageSongs(ctx, page, pageSize, func(tx *gorm.DB) *gorm.DB { return tx })
}

func (s *GormStore) ListSongsByOwner(ctx context.Context, ownerID int64, page, pageSize int) (domain.SongPage, error) {
	return s.pageSongs(ctx, page, pageSize, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner_id = ?", ownerID)
	})
}

func (s *GormStore) pageSongs(ctx context.Context, page, pageSize int, scope func(*gorm.DB) *gorm.DB) (domain.SongPage, error) {
	result := domain.SongPage{Items: []domain.Song{}, Page: page, PageSize: pageSize}
	if err := s.db.WithContext(ctx).Model(&SongModel{}).Scopes(scope).Count(&result.Total).Error; err != nil {
		return domain.SongPage{}, fmt.Errorf("count songs: %w", err)
	}
	offset, ok := pageOffset(page, pageSize, result.Total)
	if !ok {
		return result, nil
	}
	var models []SongModel
	if err := s.db.WithContext(ctx).Scopes(scope).Order("id ASC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		return domain.SongPage{}, fmt.Errorf("list songs: %w", err)
	}
	result.Items = songsFromModels(models)
	return result, nil
}

// SearchSongs matches query case-insensitively as a substring of title,
// artist or album. LIKE metacharacters in query match literally.
func (s *GormStore) SearchSongs(ctx context.Context, query string, limit int) ([]domain.Song, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	cond := fmt.Sprintf(`%[1]s(title) LIKE ? ESCAPE '\' OR %[1]s(artist) LIKE ? ESCAPE '\' OR %[1]s(album) LIKE ? ESCAPE '\'`, s.lower)
	tx := s.db.WithContext(ctx).
		Where(cond, pattern, pattern, pattern).
		Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	var models []SongModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("search songs: %w", err)
	}
	return songsFromModels(models), nil
}

func (s *GormStore) AllSongs(ctx context.Context) ([]domain.Song, error) {
	var models []SongModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list all songs: %w", err)
	}
	return songsFromModels(models), nil
}
