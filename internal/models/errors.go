package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrIO         = errors.New("io failure")
)

// Error carries one of the sentinel kinds plus the operation and code involved.
type Error struct {
	Kind error
	Op   string
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Code)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NotFound(op, code string) error {
	return &Error{Kind: ErrNotFound, Op: op, Code: code}
}

func Conflict(op, code, msg string) error {
	return &Error{Kind: ErrConflict, Op: op, Code: code, Msg: msg}
}

func Invalid(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: msg}
}

func IO(op string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Err: err}
}

// Recoverable reports whether err should be shown as a transient notice
// with the flow staying in (or returning to) a scanning state.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrValidation)
}
