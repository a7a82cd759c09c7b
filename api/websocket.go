// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract WebSocket message and connection contracts.
// The handshake and framing live behind these interfaces; the echo core
// only ever sees whole messages.

package api

import (
	"fmt"
	"net"
)

// MessageType tags a message payload as text or binary.
type MessageType int

const (
	// TextMessage carries UTF-8 text.
	TextMessage MessageType = 1
	// BinaryMessage carries arbitrary bytes.
	BinaryMessage MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is one complete inbound or outbound WebSocket message.
// Payload may be empty but never carries framing.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Close codes used by the server (RFC 6455, section 7.4.1).
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
	CloseMessageTooBig   = 1009
	CloseInternalError   = 1011
)

// Conn is one upgraded WebSocket connection.
//
// Recv and Send may each be used by at most one goroutine at a time.
// CloseWithReason and Close are safe to call from any goroutine.
type Conn interface {
	// ID returns the unique identifier assigned at accept time.
	ID() string

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// Recv blocks for the next data message. A clean close by the peer
	// yields io.EOF; any other failure wraps ErrConnection.
	Recv() (Message, error)

	// Send writes one whole message.
	Send(msg Message) error

	// CloseWithReason starts the close handshake without releasing the socket.
	CloseWithReason(code int, reason string) error

	// Close releases the underlying socket. Idempotent.
	Close() error
}

// Acceptor yields upgraded connections.
type Acceptor interface {
	// Accept blocks for the next connection that completed its handshake.
	// After Close it returns ErrListenerClosed.
	Accept() (Conn, error)

	// Addr reports the bound listening address.
	Addr() net.Addr

	// Close stops accepting.
	Close() error
}
