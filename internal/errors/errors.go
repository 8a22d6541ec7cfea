// Package errors holds the coded failures returned by the matching engine
// and its storage. Transports branch on the Code, never on the text.
package errors

import (
	"errors"
	"fmt"
)

type Code string

const (
	ErrCodeInvalidPreference Code = "INVALID_PREFERENCE"
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidEvent      Code = "INVALID_EVENT"
	ErrCodeNotInRoom         Code = "NOT_IN_ROOM"
	ErrCodeRoomNotFound      Code = "ROOM_NOT_FOUND"
	ErrCodeAlreadyWaiting    Code = "ALREADY_WAITING"
	ErrCodeConflict          Code = "CONFLICT"
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeAlreadyExists     Code = "ALREADY_EXISTS"
	ErrCodeInternal          Code = "INTERNAL_ERROR"
	ErrCodeDatabase          Code = "DATABASE_ERROR"
	ErrCodeExternal          Code = "EXTERNAL_SERVICE_ERROR"
)

// UserFacing reports whether c describes a bad request from a client (or a
// race with its partner leaving) rather than a fault on our side.
func (c Code) UserFacing() bool {
	switch c {
	case ErrCodeInvalidPreference, ErrCodeInvalidInput, ErrCodeInvalidEvent,
		ErrCodeNotInRoom, ErrCodeRoomNotFound, ErrCodeNotFound:
		return true
	}
	return false
}

// AppError pairs a Code with a short reason and, for infrastructure
// failures, the error that caused it.
type AppError struct {
	Code   Code
	Reason string
	Err    error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return string(e.Code) + ": " + e.Reason
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and reason to cause.
func Wrap(code Code, reason string, cause error) *AppError {
	return &AppError{Code: code, Reason: reason, Err: cause}
}

func InvalidPreference(gender, preference string) *AppError {
	return newf(ErrCodeInvalidPreference, "gender %q / preference %q", gender, preference)
}

func InvalidInput(field, reason string) *AppError {
	return newf(ErrCodeInvalidInput, "%s: %s", field, reason)
}

func InvalidEvent(name string) *AppError {
	return newf(ErrCodeInvalidEvent, "unknown event %q", name)
}

func NotInRoom(connID string) *AppError {
	return newf(ErrCodeNotInRoom, "%s has no room", connID)
}

func RoomNotFound(roomID string) *AppError {
	return newf(ErrCodeRoomNotFound, "%s is gone", roomID)
}

func AlreadyWaiting(connID string) *AppError {
	return newf(ErrCodeAlreadyWaiting, "%s is already in the pool", connID)
}

func Conflict(reason string) *AppError {
	return &AppError{Code: ErrCodeConflict, Reason: reason}
}

func NotFound(what string) *AppError {
	return newf(ErrCodeNotFound, "no %s", what)
}

func AlreadyExists(what string) *AppError {
	return newf(ErrCodeAlreadyExists, "%s exists", what)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "archive query", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, service, cause)
}

// CodeOf returns the Code of the first AppError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries code. A nil err carries nothing.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
