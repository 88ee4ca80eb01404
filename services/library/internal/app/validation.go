package app

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"musiclib/pkg/apperror"
	"musiclib/pkg/storage"
)

// Column limits shared by validation and tag truncation.
const (
	maxTitleLen  = 150
	maxArtistLen = 50
	maxAlbumLen  = 50
)

// SongMetadataInput is the user-confirmed title, artist and album of a song.
type SongMetadataInput struct {
	Title  string `json:"title" validate:"required,max=150"`
	Artist string `json:"artist" validate:"required,max=50"`
	Album  string `json:"album" validate:"required,max=50"`
}

func (in SongMetadataInput) normalized() SongMetadataInput {
	return SongMetadataInput{
		Title:  strings.TrimSpace(in.Title),
		Artist: strings.TrimSpace(in.Artist),
		Album:  strings.TrimSpace(in.Album),
	}
}

// RegisterInput is a sign-up request.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,min=2,max=20"`
	Email           string `json:"email" validate:"required,email,max=120"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// AccountInput changes the username and email of the caller.
type AccountInput struct {
	Username string `json:"username" validate:"required,min=2,max=20"`
	Email    string `json:"email" validate:"required,email,max=120"`
}

// ResetPasswordInput is the new password submitted with a reset token.
type ResetPasswordInput struct {
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type resetRequestInput struct {
	Email string `json:"email" validate:"required,email,max=120"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs struct rules and reports the first failure as a
// user-facing validation error.
func (a *App) validateStruct(in any) error {
	err := a.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.Validation("invalid input")
	}
	return apperror.Validation(describeFieldError(fieldErrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "eqfield":
		return "passwords must match"
	default:
		return field + " is invalid"
	}
}

type upload struct {
	filename string
	body     io.Reader
	size     int64
}

type uploadRule func(upload) error

// uploadRules run in order; the first failure wins.
func (a *App) uploadRules() []uploadRule {
	return []uploadRule{
		func(u upload) error {
			if u.body == nil || strings.TrimSpace(u.filename) == "" {
				return ErrFileRequired
			}
			return nil
		},
		func(u upload) error {
			if !strings.EqualFold(filepath.Ext(strings.TrimSpace(u.filename)), storage.Extension) {
				return ErrUnsupportedFileType
			}
			return nil
		},
		func(u upload) error {
			if u.size > a.maxUploadBytes {
				return ErrFileTooLarge
			}
			return nil
		},
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
