// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration and its defaults.

package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/protocol"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Host string // bind host, e.g. "localhost"
	Port int    // bind port; 0 picks a free port

	ReadLimit       int64 // max inbound message size in bytes; 0 disables
	ReadBufferSize  int   // per-connection read buffer
	WriteBufferSize int   // pooled write buffer size

	HandshakeTimeout time.Duration // upgrade request/response bound
	WriteTimeout     time.Duration // per-message write deadline
	PingInterval     time.Duration // keepalive ping period; 0 disables keepalive
	PingTimeout      time.Duration // pong wait before the connection is dropped
	CloseTimeout     time.Duration // close frame write bound
	ShutdownTimeout  time.Duration // grace period before stragglers are force-closed

	PipelineDepth int           // echoes that may be pending while reading ahead; 0 = sequential
	Backlog       int           // upgraded connections queued ahead of the accept loop
	ReusePort     bool          // SO_REUSEPORT (Linux)
	DeferAccept   time.Duration // TCP_DEFER_ACCEPT (Linux); 0 disables
}

// DefaultConfig returns the defaults: localhost:8765, 1 MiB messages,
// 20s keepalive.
func DefaultConfig() *Config {
	return &Config{
		Host:             "localhost",
		Port:             8765,
		ReadLimit:        protocol.MaxMessageSize,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		PingTimeout:      20 * time.Second,
		CloseTimeout:     10 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		PipelineDepth:    0,
		Backlog:          64,
	}
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate rejects out-of-range values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", api.ErrInvalidConfig, c.Port)
	}
	if c.ReadLimit < 0 || c.ReadBufferSize < 0 || c.WriteBufferSize < 0 {
		return fmt.Errorf("%w: negative size", api.ErrInvalidConfig)
	}
	if c.PipelineDepth < 0 || c.Backlog < 0 {
		return fmt.Errorf("%w: negative pipeline depth or backlog", api.ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"handshake timeout": c.HandshakeTimeout,
		"write timeout":     c.WriteTimeout,
		"ping interval":     c.PingInterval,
		"ping timeout":      c.PingTimeout,
		"close timeout":     c.CloseTimeout,
		"shutdown timeout":  c.ShutdownTimeout,
		"defer accept":      c.DeferAccept,
	} {
		if d < 0 {
			return fmt.Errorf("%w: negative %s", api.ErrInvalidConfig, name)
		}
	}
	if c.PingInterval > 0 && c.PingTimeout == 0 {
		return fmt.Errorf("%w: ping interval set without ping timeout", api.ErrInvalidConfig)
	}
	return nil
}

func (c *Config) protocolConfig() protocol.Config {
	return protocol.Config{
		HandshakeTimeout: c.HandshakeTimeout,
		ReadBufferSize:   c.ReadBufferSize,
		WriteBufferSize:  c.WriteBufferSize,
		ReadLimit:        c.ReadLimit,
		WriteTimeout:     c.WriteTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
		CloseTimeout:     c.CloseTimeout,
	}
}

// snapshot is published to the control config store.
func (c *Config) snapshot() map[string]any {
	return map[string]any{
		"listen_addr":          c.Addr(),
		"read_limit":           c.ReadLimit,
		"handshake_timeout_ms": c.HandshakeTimeout.Milliseconds(),
		"write_timeout_ms":     c.WriteTimeout.Milliseconds(),
		"ping_interval_ms":     c.PingInterval.Milliseconds(),
		"ping_timeout_ms":      c.PingTimeout.Milliseconds(),
		"shutdown_timeout_ms":  c.ShutdownTimeout.Milliseconds(),
		"pipeline_depth":       c.PipelineDepth,
	}
}
