// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics, configuration snapshots and debug introspection for the echo server.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and merged updates with reload listeners
//   - Named int64 counters
//   - Debug probe registration and state export
//
// Platform probes are build-tag-partitioned.
package control
