// File: api/handler.go
// Package api defines ConnHandler interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// ConnHandler owns one connection for its whole OPEN lifetime.
// Returning nil means the peer closed cleanly.
type ConnHandler interface {
	Handle(ctx context.Context, c Conn) error
}

// ConnHandlerFunc converts a function into a ConnHandler.
type ConnHandlerFunc func(ctx context.Context, c Conn) error

// Handle calls f(ctx, c).
func (f ConnHandlerFunc) Handle(ctx context.Context, c Conn) error {
	return f(ctx, c)
}
