// File: transport/bind.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Binding of every address a host name resolves to.

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/exp/slog"
)

// bindAll listens on each address host resolves to, so "localhost" is
// reachable over both 127.0.0.1 and ::1. Port 0 is resolved by the first
// bind and reused for the rest. Addresses the host does not have
// (EADDRNOTAVAIL, e.g. ::1 with IPv6 disabled) are skipped while at least
// one bind succeeds; any other failure closes what was bound and is returned.
func bindAll(ctx context.Context, lc net.ListenConfig, addr string, log *slog.Logger) ([]net.Listener, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	hosts := []string{host}
	if host != "" && net.ParseIP(host) == nil {
		ips, err := net.DefaultResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		hosts = dedupe(ips)
	}

	var lns []net.Listener
	var skipped error
	for _, h := range hosts {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(h, port))
		if err != nil {
			if len(hosts) > 1 && errors.Is(err, syscall.EADDRNOTAVAIL) {
				log.Warn("skipping unavailable address", "host", h, "err", err)
				skipped = err
				continue
			}
			closeAll(lns)
			return nil, err
		}
		if port == "0" {
			port = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
		}
		lns = append(lns, ln)
	}
	if len(lns) == 0 {
		return nil, fmt.Errorf("no usable address for %q: %w", host, skipped)
	}
	return lns, nil
}

func dedupe(ips []string) []string {
	seen := make(map[string]bool, len(ips))
	out := ips[:0]
	for _, ip := range ips {
		if !seen[ip] {
			seen[ip] = true
			out = append(out, ip)
		}
	}
	return out
}

func closeAll(lns []net.Listener) {
	for _, ln := range lns {
		_ = ln.Close()
	}
}
