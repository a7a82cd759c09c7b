// Package transport
// Author: momentics <momentics@gmail.com>
//
// TCP listener with the WebSocket upgrade endpoint in front of it.
// The listening socket is owned here and never handed to connection handlers.
package transport
