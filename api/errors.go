// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-echo.

package api

import (
	"errors"
	"fmt"
)

// Error taxonomy. Classify with errors.Is.
var (
	// ErrBind is fatal: the listening address is unavailable.
	ErrBind = errors.New("bind error")
	// ErrHandshake marks a rejected upgrade request; only that attempt is dropped.
	ErrHandshake = errors.New("handshake error")
	// ErrConnection marks a mid-session failure; only that connection ends.
	ErrConnection = errors.New("connection error")

	ErrListenerClosed = errors.New("listener closed")
	ErrServerClosed   = errors.New("server closed")
	ErrAlreadyRunning = errors.New("server already running")
	ErrInvalidConfig  = errors.New("invalid config")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeBind ErrorCode = iota + 1
	ErrCodeHandshake
	ErrCodeConnection
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeBind:
		return "bind"
	case ErrCodeHandshake:
		return "handshake"
	case ErrCodeConnection:
		return "connection"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's taxonomy class.
func (e *Error) Is(target error) bool {
	switch e.Code {
	case ErrCodeBind:
		return target == ErrBind
	case ErrCodeHandshake:
		return target == ErrHandshake
	case ErrCodeConnection:
		return target == ErrConnection
	}
	return false
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		Err:     cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
