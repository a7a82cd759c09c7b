// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket handshake and message I/O delegated to gorilla/websocket.
// Frames, masking, fragmentation, ping/pong and the close handshake are the
// library's concern; this package exposes whole messages through api.Conn.
package protocol
