// File: cmd/hioload-echo/main.go
// Package main
// WebSocket echo server: every message goes back to its sender unchanged.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/server"
)

var version = "dev"

type options struct {
	cfg      *server.Config
	logLevel slog.Level
	logJSON  bool
	version  bool
}

func parseFlags(args []string, out io.Writer) (*options, error) {
	o := &options{cfg: server.DefaultConfig()}
	fs := flag.NewFlagSet("hioload-echo", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&o.cfg.Host, "host", o.cfg.Host, "listen host")
	fs.IntVar(&o.cfg.Port, "port", o.cfg.Port, "listen port")
	fs.Int64Var(&o.cfg.ReadLimit, "read-limit", o.cfg.ReadLimit, "max inbound message size in bytes (0 = unlimited)")
	fs.DurationVar(&o.cfg.PingInterval, "ping-interval", o.cfg.PingInterval, "keepalive ping period (0 disables)")
	fs.DurationVar(&o.cfg.PingTimeout, "ping-timeout", o.cfg.PingTimeout, "pong wait before a connection is dropped")
	fs.DurationVar(&o.cfg.ShutdownTimeout, "shutdown-timeout", o.cfg.ShutdownTimeout, "grace period for open connections on shutdown")
	fs.IntVar(&o.cfg.PipelineDepth, "pipeline", o.cfg.PipelineDepth, "echoes that may be pending while reading ahead (0 = sequential)")
	fs.BoolVar(&o.cfg.ReusePort, "reuseport", o.cfg.ReusePort, "set SO_REUSEPORT on the listening socket")
	level := fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.BoolVar(&o.logJSON, "log-json", false, "emit JSON logs")
	fs.BoolVar(&o.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := o.logLevel.UnmarshalText([]byte(strings.ToUpper(*level))); err != nil {
		return nil, fmt.Errorf("%w: log level %q", api.ErrInvalidConfig, *level)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func newLogger(o *options, w io.Writer) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: o.logLevel}
	if o.logJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if o.version {
		fmt.Fprintf(stdout, "hioload-echo %s\n", version)
		return 0
	}

	log := newLogger(o, stderr)
	if err := server.Run(ctx, o.cfg, server.WithLogger(log)); err != nil {
		log.Error("server stopped", "addr", o.cfg.Addr(), "err", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
