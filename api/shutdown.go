// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "context"

// GracefulShutdown stops a component, giving in-flight work until ctx
// expires before forcing release.
type GracefulShutdown interface {
	Shutdown(ctx context.Context) error
}
