//go:build linux
// +build linux

// transport/sockopt_linux.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening socket options applied before bind.

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

func socketControl(o Options) func(network, address string, rc syscall.RawConn) error {
	if !o.ReusePort && o.DeferAccept <= 0 {
		return nil
	}
	return func(network, address string, rc syscall.RawConn) error {
		var opErr error
		err := rc.Control(func(fd uintptr) {
			if o.ReusePort {
				if opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); opErr != nil {
					opErr = fmt.Errorf("SO_REUSEPORT: %w", opErr)
					return
				}
			}
			if o.DeferAccept > 0 {
				secs := int(o.DeferAccept.Seconds())
				if secs < 1 {
					secs = 1
				}
				if opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, secs); opErr != nil {
					opErr = fmt.Errorf("TCP_DEFER_ACCEPT: %w", opErr)
				}
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
