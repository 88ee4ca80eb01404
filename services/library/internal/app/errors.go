package app

import "musiclib/pkg/apperror"

var (
	ErrFileRequired        = apperror.New(apperror.KindValidation, "SONG_FILE_REQUIRED", "file is required (field: file)")
	ErrUnsupportedFileType = apperror.New(apperror.KindValidation, "SONG_UNSUPPORTED_FILE_TYPE", "unsupported file type: only .mp3 files are accepted")
	// ErrFileTooLarge is a validation failure that the HTTP layer reports as 413.
	ErrFileTooLarge = apperror.New(apperror.KindValidation, "SONG_FILE_TOO_LARGE", "file too large")

	ErrSongNotFound    = apperror.New(apperror.KindNotFound, "SONG_NOT_FOUND", "song not found")
	ErrSongFileMissing = apperror.New(apperror.KindNotFound, "SONG_FILE_MISSING", "song file not found")
	ErrForbidden       = apperror.New(apperror.KindForbidden, "SONG_FORBIDDEN", "you can only change songs you uploaded")

	// ErrInvalidCredentials does not say which of email or password was wrong.
	ErrInvalidCredentials = apperror.New(apperror.KindUnauthorized, "AUTH_INVALID_CREDENTIALS", "incorrect email address or password")
	ErrUnauthorized       = apperror.New(apperror.KindUnauthorized, "AUTH_INVALID_TOKEN", "unauthorized")
	ErrUsernameTaken      = apperror.New(apperror.KindConflict, "AUTH_USERNAME_TAKEN", "That username is taken. Please choose a different one.")
	ErrEmailTaken         = apperror.New(apperror.KindConflict, "AUTH_EMAIL_TAKEN", "That email is taken. Please choose a different one.")

	ErrInvalidResetToken = apperror.New(apperror.KindToken, "RESET_TOKEN_INVALID", "That is an invalid or expired token")
)
