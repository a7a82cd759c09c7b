// Package session
// Author: momentics <momentics@gmail.com>
//
// Registry of live connection sessions. Each Session maps to one accepted
// WebSocket connection and is owned by exactly one connection task; the
// registry only lets the server enumerate sessions for shutdown and stats.

package session
