// File: protocol/upgrader.go
// Package protocol implements the HTTP→WebSocket handshake on top of gorilla/websocket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Upgrader validates the upgrade request, writes the 101 response and wraps
// the hijacked socket into a Conn. Rejected requests receive an HTTP error
// status from gorilla and are reported as api.ErrHandshake.

package protocol

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-echo/api"
)

// MaxMessageSize is the default inbound message limit (1 MiB).
const MaxMessageSize = 1 << 20

// Config tunes the handshake and every connection it produces.
type Config struct {
	HandshakeTimeout time.Duration // bound on writing the 101 response
	ReadBufferSize   int
	WriteBufferSize  int
	WriteBufferPool  websocket.BufferPool // shared write buffers; nil allocates per connection

	ReadLimit    int64         // max inbound message size; <= 0 disables the limit
	WriteTimeout time.Duration // per-message write deadline; 0 disables
	PingInterval time.Duration // keepalive period; 0 disables keepalive
	PingTimeout  time.Duration // pong wait after a ping
	CloseTimeout time.Duration // bound on writing a close frame
}

// DefaultConfig mirrors the server defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		ReadLimit:        MaxMessageSize,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		PingTimeout:      20 * time.Second,
		CloseTimeout:     10 * time.Second,
	}
}

// Upgrader turns HTTP upgrade requests into Conns.
type Upgrader struct {
	ws     websocket.Upgrader
	cfg    Config
	nextID atomic.Uint64
}

// NewUpgrader builds an Upgrader that accepts any origin and any request path.
func NewUpgrader(cfg Config) *Upgrader {
	u := &Upgrader{cfg: cfg}
	u.ws = websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		ReadBufferSize:   cfg.ReadBufferSize,
		WriteBufferSize:  cfg.WriteBufferSize,
		WriteBufferPool:  cfg.WriteBufferPool,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	return u
}

// Upgrade performs the handshake. On failure gorilla has already replied
// with an HTTP error status; the returned error matches api.ErrHandshake.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.ws.Upgrade(w, r, nil)
	if err != nil {
		return nil, api.NewError(api.ErrCodeHandshake, "upgrade", err).
			WithContext("remote", r.RemoteAddr).
			WithContext("path", r.URL.Path)
	}
	id := fmt.Sprintf("conn-%d", u.nextID.Add(1))
	return newConn(ws, id, u.cfg), nil
}
