// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger shared by the server and its defaults.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithHandler replaces the echo handler run for every connection.
func WithHandler(h api.ConnHandler) ServerOption {
	return func(s *Server) {
		s.handler = h
	}
}

// WithAcceptor injects a ready acceptor; the server then binds nothing itself
// and takes ownership of a.
func WithAcceptor(a api.Acceptor) ServerOption {
	return func(s *Server) {
		s.acceptor = a
	}
}

// WithControl shares a control facade for metrics and probes.
func WithControl(c *control.Control) ServerOption {
	return func(s *Server) {
		s.control = c
	}
}
