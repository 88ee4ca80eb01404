// Package apperror defines typed application failures and their HTTP mapping.
package apperror

import (
	"errors"
	"net/http"
)

// Kind classifies an application failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindStorage
	KindTagParse
	KindTagWrite
	KindToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindTagParse:
		return "tag_parse"
	case KindTagWrite:
		return "tag_write"
	case KindToken:
		return "token"
	default:
		return "internal"
	}
}

// Error is a classified failure. Message is safe to show to end users;
// Err carries the underlying cause for logs only.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindToken:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New builds an error with an explicit machine-readable code.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION_FAILED", Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Code: "AUTH_INVALID_TOKEN", Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Code: "FORBIDDEN", Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: "NOT_FOUND", Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: "CONFLICT", Message: message}
}

func Token(message string) *Error {
	return &Error{Kind: KindToken, Code: "TOKEN_INVALID", Message: message}
}

func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Code: "STORAGE_ERROR", Message: message, Err: err}
}

func TagParse(message string, err error) *Error {
	return &Error{Kind: KindTagParse, Code: "TAG_PARSE_FAILED", Message: message, Err: err}
}

func TagWrite(message string, err error) *Error {
	return &Error{Kind: KindTagWrite, Code: "TAG_WRITE_FAILED", Message: message, Err: err}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Code: "SYSTEM_INTERNAL_ERROR", Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Has reports whether err carries an *Error of the given kind.
func Has(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

func IsValidation(err error) bool { return Has(err, KindValidation) }
func IsNotFound(err error) bool   { return Has(err, KindNotFound) }
func IsForbidden(err error) bool  { return Has(err, KindForbidden) }
func IsConflict(err error) bool   { return Has(err, KindConflict) }
func IsStorage(err error) bool    { return Has(err, KindStorage) }
func IsTagParse(err error) bool   { return Has(err, KindTagParse) }
func IsTagWrite(err error) bool   { return Has(err, KindTagWrite) }
func IsToken(err error) bool      { return Has(err, KindToken) }
