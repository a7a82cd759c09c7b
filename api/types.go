// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// ConnState enumerates the lifecycle of one connection:
// CONNECTING -> OPEN -> {CLOSED_NORMAL, CLOSED_ERROR}.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosedNormal
	StateClosedError
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedNormal:
		return "closed_normal"
	case StateClosedError:
		return "closed_error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is allowed.
func (s ConnState) Terminal() bool {
	return s == StateClosedNormal || s == StateClosedError
}

// CanTransition reports whether s -> next is a legal lifecycle step.
func (s ConnState) CanTransition(next ConnState) bool {
	switch s {
	case StateConnecting:
		return next == StateOpen || next.Terminal()
	case StateOpen:
		return next.Terminal()
	default:
		return false
	}
}

// Stats provides a standard layout for server health reporting.
type Stats struct {
	Accepted          int64
	Active            int64
	HandshakeFailures int64
	ClosedNormal      int64
	ClosedError       int64
	MessagesEchoed    int64
	BytesEchoed       int64
	StartedAt         time.Time
}
