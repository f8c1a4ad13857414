package kite

import (
	"errors"
	"fmt"
)

// ErrorKind mirrors the venue's exception taxonomy.
type ErrorKind string

const (
	KindNetwork         ErrorKind = "NetworkException"
	KindGeneral         ErrorKind = "GeneralException"
	KindData            ErrorKind = "DataException"
	KindTooManyRequests ErrorKind = "TooManyRequestsException"
	KindToken           ErrorKind = "TokenException"
	KindInput           ErrorKind = "InputException"
)

// Error is a classified venue failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("kite: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kite: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, status int, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, StatusCode: status, Err: err}
}

// NewInputError reports a programming error (missing or invalid argument).
// Never retried.
func NewInputError(msg string) *Error {
	return &Error{Kind: KindInput, Message: msg}
}

// IsTransient reports whether err is safe to retry: network failures,
// rate-limit rejections, generic upstream failures and data failures.
// Input and token errors are terminal.
func IsTransient(err error) bool {
	var ke *Error
	if !errors.As(err, &ke) {
		return false
	}
	switch ke.Kind {
	case KindNetwork, KindGeneral, KindData, KindTooManyRequests:
		return true
	}
	return false
}
