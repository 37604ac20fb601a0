// Package sounderr defines the error codes reported by the sound system.
package sounderr

import (
	"context"
	"errors"
	"io/fs"
)

// Code is a sound system error code. Success is zero, failures are negative.
type Code int

const (
	Success      Code = 0
	NotSupported Code = -1
	Invalid      Code = -2
	State        Code = -3
	OOM          Code = -4
	NoDriver     Code = -5
	System       Code = -6
	Corrupt      Code = -7
	TooBig       Code = -8
	NotFound     Code = -9
	Destroyed    Code = -10
	Canceled     Code = -11
	NotAvailable Code = -12
	Access       Code = -13
	IO           Code = -14
	Internal     Code = -15
	Disabled     Code = -16
	Forked       Code = -17
	Disconnected Code = -18
)

type codeInfo struct {
	name string
	text string
}

// indexed by -code
var codes = [...]codeInfo{
	{"SUCCESS", "Success"},
	{"NOTSUPPORTED", "Operation not supported"},
	{"INVALID", "Invalid argument"},
	{"STATE", "Invalid state"},
	{"OOM", "Out of memory"},
	{"NODRIVER", "No such driver"},
	{"SYSTEM", "System error"},
	{"CORRUPT", "File or data corrupt"},
	{"TOOBIG", "File or data too large"},
	{"NOTFOUND", "File or data not found"},
	{"DESTROYED", "Destroyed"},
	{"CANCELED", "Canceled"},
	{"NOTAVAILABLE", "Not available"},
	{"ACCESS", "Access forbidden"},
	{"IO", "IO error"},
	{"INTERNAL", "Internal error"},
	{"DISABLED", "Sound disabled"},
	{"FORKED", "Process forked"},
	{"DISCONNECTED", "Disconnected"},
}

// Codes returns every known code, Success first.
func Codes() []Code {
	out := make([]Code, len(codes))
	for i := range codes {
		out[i] = Code(-i)
	}
	return out
}

// Valid reports whether c is a known code.
func (c Code) Valid() bool {
	return c <= 0 && int(-c) < len(codes)
}

// String returns the constant name of the code, e.g. "CANCELED".
func (c Code) String() string {
	if !c.Valid() {
		return "UNKNOWN"
	}
	return codes[-c].name
}

// Strerror returns the human readable description of a code.
func Strerror(c Code) string {
	if !c.Valid() {
		return "Invalid error code"
	}
	return codes[-c].text
}

// Error is a failed sound system operation.
type Error struct {
	Op   string // e.g. "open", "play"; may be empty
	Code Code
	Err  error // underlying cause, if any
}

func (e *Error) Error() string {
	return Strerror(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New returns an error for code, or nil for Success.
func New(c Code) error {
	if c == Success {
		return nil
	}
	return &Error{Code: c}
}

// Op returns an error for code attributed to op, or nil for Success.
func Op(op string, c Code) error {
	if c == Success {
		return nil
	}
	return &Error{Op: op, Code: c}
}

// Wrap attaches a code to a lower level error. A nil err yields nil.
func Wrap(op string, c Code, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Code: c, Err: err}
}

// CodeOf maps an arbitrary error to the closest code.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, fs.ErrPermission):
		return Access
	case errors.Is(err, context.Canceled):
		return Canceled
	default:
		return Internal
	}
}

// Comparable sentinels for errors.Is.
var (
	ErrInvalid   = &Error{Code: Invalid}
	ErrState     = &Error{Code: State}
	ErrNotFound  = &Error{Code: NotFound}
	ErrDestroyed = &Error{Code: Destroyed}
	ErrCanceled  = &Error{Code: Canceled}
	ErrDisabled  = &Error{Code: Disabled}
	ErrNoDriver  = &Error{Code: NoDriver}
)
