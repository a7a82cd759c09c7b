// File: echo/handler.go
// Package echo implements the connection handler that returns every
// message to its sender.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package echo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
)

// Handler echoes each inbound message, same type and bytes, in arrival order.
type Handler struct {
	depth   int
	log     *slog.Logger
	observe func(api.Message)
}

var _ api.ConnHandler = (*Handler)(nil)

// Option customizes a Handler.
type Option func(*Handler)

// WithPipelineDepth lets up to n received messages wait for their echo while
// the next one is read. 0 keeps the strict read-then-write loop.
func WithPipelineDepth(n int) Option {
	return func(h *Handler) { h.depth = n }
}

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithObserver registers fn to run after every successful echo.
func WithObserver(fn func(api.Message)) Option {
	return func(h *Handler) { h.observe = fn }
}

// New returns an echo Handler.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// Handle runs until the peer closes (nil), the connection fails, or ctx is
// cancelled. Cancellation closes c to unblock the pending read.
func (h *Handler) Handle(ctx context.Context, c api.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	var err error
	if h.depth > 0 {
		err = h.pipelined(c)
	} else {
		err = h.sequential(c)
	}
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("echo %s: %w", c.ID(), ctx.Err())
	}
	return err
}

func (h *Handler) sequential(c api.Conn) error {
	for {
		msg, err := c.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := c.Send(msg); err != nil {
			return err
		}
		h.echoed(c, msg)
	}
}

// pipelined reads on a second goroutine. Send order equals receive order
// because there is exactly one producer and one consumer on the fifo.
// Messages read before the peer's close are all echoed; the close reply is
// left to the connection's Close.
func (h *Handler) pipelined(c api.Conn) error {
	f := newFIFO(h.depth)
	readErr := make(chan error, 1)
	go func() {
		defer f.close()
		for {
			msg, err := c.Recv()
			if err != nil {
				// the writer drains what is queued before the handler returns
				readErr <- err
				return
			}
			if !f.push(msg) {
				readErr <- nil
				return
			}
		}
	}()

	for {
		msg, ok := f.pop()
		if !ok {
			break
		}
		if err := c.Send(msg); err != nil {
			f.close()
			_ = c.Close()
			if rerr := <-readErr; errors.Is(rerr, io.EOF) {
				return nil
			}
			return err
		}
		h.echoed(c, msg)
	}

	if err := <-readErr; err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *Handler) echoed(c api.Conn, msg api.Message) {
	h.log.Debug("echo", "conn", c.ID(), "type", msg.Type.String(), "size", len(msg.Payload))
	if h.observe != nil {
		h.observe(msg)
	}
}
