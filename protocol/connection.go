// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn adapts a gorilla *websocket.Conn to api.Conn: whole-message
// receive/send, keepalive pings, close handshake and traffic counters.
// A close frame from the peer is not answered at once: echoes already read
// may still be written, and the reply goes out from Close.

package protocol

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-echo/api"
)

// Conn encapsulates one upgraded WebSocket session.
type Conn struct {
	ws  *websocket.Conn
	id  string
	cfg Config

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	peerClose atomic.Int32 // close code received from the peer; 0 until then
	closeSent atomic.Bool

	messagesIn  atomic.Int64
	messagesOut atomic.Int64
	bytesIn     atomic.Int64
	bytesOut    atomic.Int64
}

var _ api.Conn = (*Conn)(nil)

// ConnStats is a snapshot of per-connection traffic.
type ConnStats struct {
	MessagesIn  int64
	MessagesOut int64
	BytesIn     int64
	BytesOut    int64
}

func newConn(ws *websocket.Conn, id string, cfg Config) *Conn {
	c := &Conn{
		ws:   ws,
		id:   id,
		cfg:  cfg,
		done: make(chan struct{}),
	}
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	ws.SetCloseHandler(func(code int, _ string) error {
		c.peerClose.Store(int32(code))
		return nil
	})
	if cfg.PingInterval > 0 {
		c.extendReadDeadline()
		ws.SetPongHandler(func(string) error {
			c.extendReadDeadline()
			return nil
		})
		go c.keepalive()
	} else {
		// drop any deadline left over from the HTTP server's handshake read
		_ = ws.SetReadDeadline(time.Time{})
	}
	return c
}

// ID returns the identifier assigned at upgrade time.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Recv returns the next text or binary message. Pings are answered inside
// gorilla. A clean close from the peer returns io.EOF; Send keeps working
// until Close.
func (c *Conn) Recv() (api.Message, error) {
	mt, payload, err := c.ws.ReadMessage()
	if err != nil {
		return api.Message{}, c.readError(err)
	}
	if c.cfg.PingInterval > 0 {
		c.extendReadDeadline()
	}
	msg := api.Message{Payload: payload}
	switch mt {
	case websocket.TextMessage:
		msg.Type = api.TextMessage
	case websocket.BinaryMessage:
		msg.Type = api.BinaryMessage
	}
	c.messagesIn.Add(1)
	c.bytesIn.Add(int64(len(payload)))
	return msg, nil
}

// Send writes msg as a single message with the configured write deadline.
func (c *Conn) Send(msg api.Message) error {
	var mt int
	switch msg.Type {
	case api.TextMessage:
		mt = websocket.TextMessage
	case api.BinaryMessage:
		mt = websocket.BinaryMessage
	default:
		return api.NewError(api.ErrCodeInternal, "send: unsupported message type", nil).
			WithContext("type", msg.Type.String())
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := c.ws.WriteMessage(mt, msg.Payload); err != nil {
		return api.NewError(api.ErrCodeConnection, "write", err).
			WithContext("conn", c.id)
	}
	c.messagesOut.Add(1)
	c.bytesOut.Add(int64(len(msg.Payload)))
	return nil
}

// CloseWithReason sends a close frame and leaves the socket open so the
// peer can complete the close handshake. The pending Recv then returns io.EOF.
// After the peer's own close frame this is the reply.
func (c *Conn) CloseWithReason(code int, reason string) error {
	deadline := time.Now().Add(c.cfg.CloseTimeout)
	if c.cfg.CloseTimeout <= 0 {
		deadline = time.Now().Add(time.Second)
	}
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return api.NewError(api.ErrCodeConnection, "close", err).
			WithContext("conn", c.id).
			WithContext("code", code)
	}
	c.closeSent.Store(true)
	return nil
}

// PeerCloseCode returns the code of the peer's close frame, or 0 if none
// has arrived.
func (c *Conn) PeerCloseCode() int {
	return int(c.peerClose.Load())
}

// Close answers a pending peer close with the same code, then releases the
// socket and stops keepalive. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if code := c.PeerCloseCode(); code != 0 && !c.closeSent.Load() {
			_ = c.CloseWithReason(code, "")
		}
		close(c.done)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// Stats returns a snapshot of traffic counters.
func (c *Conn) Stats() ConnStats {
	return ConnStats{
		MessagesIn:  c.messagesIn.Load(),
		MessagesOut: c.messagesOut.Load(),
		BytesIn:     c.bytesIn.Load(),
		BytesOut:    c.bytesOut.Load(),
	}
}

func (c *Conn) readError(err error) error {
	if websocket.IsCloseError(err, api.CloseNormalClosure, api.CloseGoingAway, api.CloseNoStatus) {
		return io.EOF
	}
	e := api.NewError(api.ErrCodeConnection, "read", err).
		WithContext("conn", c.id)
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		e.WithContext("code", ce.Code)
	} else {
		e.WithContext("code", api.CloseAbnormalClosure)
	}
	return e
}

// extendReadDeadline is only called from the reading goroutine.
func (c *Conn) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PingTimeout))
}

func (c *Conn) keepalive() {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			deadline := time.Now().Add(c.cfg.PingTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				// The read deadline ends the session.
				return
			}
		}
	}
}
