package app

import (
	"context"
	"errors"
	"os"
	"time"

	"musiclib/internal/util"
	"musiclib/pkg/apperror"
	"musiclib/pkg/domain"
	"musiclib/pkg/store"
)

// ConsistencyReport lists rows whose file is missing and stored files no row
// refers to. PendingFiles are unreferenced but younger than the orphan grace
// period; they are never removed.
type ConsistencyReport struct {
	DanglingRows  []domain.Song `json:"danglingRows"`
	OrphanedFiles []string      `json:"orphanedFiles"`
	PendingFiles  []string      `json:"pendingFiles"`
	Repaired      bool          `json:"repaired"`
}

// Clean reports whether rows and files agree.
func (r ConsistencyReport) Clean() bool {
	return len(r.DanglingRows) == 0 && len(r.OrphanedFiles) == 0
}

// CheckConsistency compares song rows against the upload directory. With
// repair set, dangling rows are deleted and orphaned files removed.
//
// Rows are loaded before the directory is listed. Uploads write the file
// before the row, so any row seen here already had its file on disk; a file
// that appears without a row is only orphaned once it is older than the
// grace period.
func (a *App) CheckConsistency(ctx context.Context, repair bool) (ConsistencyReport, error) {
	songs, err := a.store.AllSongs(ctx)
	if err != nil {
		return ConsistencyReport{}, apperror.Internal("failed to load songs", err)
	}
	names, err := a.files.List()
	if err != nil {
		return ConsistencyReport{}, apperror.Storage("failed to list upload directory", err)
	}

	onDisk := make(map[string]bool, len(names))
	for _, name := range names {
		onDisk[name] = true
	}
	report := ConsistencyReport{DanglingRows: []domain.Song{}, OrphanedFiles: []string{}, PendingFiles: []string{}}
	referenced := make(map[string]bool, len(songs))
	for _, song := range songs {
		referenced[song.Filename] = true
		if !onDisk[song.Filename] {
			report.DanglingRows = append(report.DanglingRows, song)
		}
	}
	cutoff := time.Now().Add(-a.orphanGrace)
	for _, name := range names {
		if referenced[name] {
			continue
		}
		modTime, err := a.files.ModTime(name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return ConsistencyReport{}, apperror.Storage("failed to stat stored file", err)
		}
		if modTime.After(cutoff) {
			report.PendingFiles = append(report.PendingFiles, name)
			continue
		}
		report.OrphanedFiles = append(report.OrphanedFiles, name)
	}
	if !repair || report.Clean() {
		return report, nil
	}

	logger := util.LoggerFromContext(ctx)
	for _, song := range report.DanglingRows {
		if err := a.store.DeleteSong(ctx, song.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return report, apperror.Internal("failed to delete dangling row", err)
		}
		logger.Info("deleted dangling row", "song_id", song.ID, "file", song.Filename)
	}
	for _, name := range report.OrphanedFiles {
		if err := a.files.Remove(name); err != nil {
			return report, apperror.Storage("failed to remove orphaned file", err)
		}
		logger.Info("removed orphaned file", "file", name)
	}
	report.Repaired = true
	return report, nil
}
