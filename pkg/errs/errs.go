package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire mapping. The zero value is internal.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindNotFound
	KindConflict
	KindIntegrity
	KindExternal
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Input(format string, args ...any) error {
	return &Error{Kind: KindInput, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Integrity(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Msg: fmt.Sprintf(format, args...)}
}

func External(err error, format string, args ...any) error {
	return &Error{Kind: KindExternal, Msg: fmt.Sprintf(format, args...), Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func IsInput(err error) bool     { return KindOf(err) == KindInput }
func IsNotFound(err error) bool  { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool  { return KindOf(err) == KindConflict }
func IsIntegrity(err error) bool { return KindOf(err) == KindIntegrity }
func IsExternal(err error) bool  { return KindOf(err) == KindExternal }

// Code returns the wire error code for an error kind.
func Code(err error) string {
	switch KindOf(err) {
	case KindInput:
		return "BAD_INPUT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindIntegrity:
		return "INTEGRITY_FAILURE"
	case KindExternal:
		return "ANCHOR_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// HTTPStatus returns the HTTP status for an error kind.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return 400
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindIntegrity:
		return 409
	case KindExternal:
		return 502
	default:
		return 500
	}
}
