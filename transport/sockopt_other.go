//go:build !linux
// +build !linux

// transport/sockopt_other.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"syscall"
)

func socketControl(o Options) func(network, address string, rc syscall.RawConn) error {
	if !o.ReusePort && o.DeferAccept <= 0 {
		return nil
	}
	return func(network, address string, rc syscall.RawConn) error {
		return fmt.Errorf("listener socket options: %w", errors.ErrUnsupported)
	}
}
