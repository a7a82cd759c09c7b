// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection session: lifecycle state, cancellation and ownership of the Conn.

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-echo/api"
)

// Session tracks one accepted connection from CONNECTING to a closed state.
type Session struct {
	conn      api.Conn
	cancel    context.CancelFunc
	startedAt time.Time

	mu    sync.Mutex
	state api.ConnState
}

// New creates a CONNECTING session owning conn. cancel stops the
// connection's task; it may be nil.
func New(conn api.Conn, cancel context.CancelFunc) *Session {
	if cancel == nil {
		cancel = func() {}
	}
	return &Session{
		conn:      conn,
		cancel:    cancel,
		startedAt: time.Now(),
		state:     api.StateConnecting,
	}
}

// ID returns the connection identifier.
func (s *Session) ID() string { return s.conn.ID() }

// Conn returns the owned connection.
func (s *Session) Conn() api.Conn { return s.conn }

// StartedAt returns the accept time.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// State returns the current lifecycle state.
func (s *Session) State() api.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to next. Terminal states are final.
func (s *Session) Transition(next api.ConnState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(next) {
		return fmt.Errorf("session %s: illegal transition %s -> %s", s.conn.ID(), s.state, next)
	}
	s.state = next
	return nil
}

// Cancel signals the connection's task to stop; idempotent.
func (s *Session) Cancel() {
	s.cancel()
}
