// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer pooling for the WebSocket layer. BufferPool recycles the write
// buffers gorilla/websocket allocates per connection and counts reuse so the
// control probes can report it.
package pool
