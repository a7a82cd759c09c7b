// File: transport/listener.go
// Direct WebSocket listener: binds TCP, serves the upgrade endpoint and
// queues upgraded connections for Accept.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/protocol"
)

// Options tune the listener socket and handshake endpoint.
type Options struct {
	HandshakeTimeout time.Duration // bound on reading the upgrade request
	Backlog          int           // upgraded connections waiting for Accept
	ReusePort        bool          // SO_REUSEPORT on the listening socket
	DeferAccept      time.Duration // TCP_DEFER_ACCEPT; 0 disables
	Logger           *slog.Logger
	OnHandshakeError func(remote string) // called once per connection that never upgraded
}

// Option customizes Listen.
type Option func(*Options)

// WithHandshakeTimeout bounds how long a client may take to send its upgrade request.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

// WithBacklog sets the number of upgraded connections queued ahead of Accept.
func WithBacklog(n int) Option {
	return func(o *Options) { o.Backlog = n }
}

// WithReusePort lets several processes bind the same address.
func WithReusePort(on bool) Option {
	return func(o *Options) { o.ReusePort = on }
}

// WithDeferAccept delays accept until the client has sent data.
func WithDeferAccept(d time.Duration) Option {
	return func(o *Options) { o.DeferAccept = d }
}

// WithLogger sets the listener logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithHandshakeErrorHook registers fn for connections dropped before upgrading.
func WithHandshakeErrorHook(fn func(remote string)) Option {
	return func(o *Options) { o.OnHandshakeError = fn }
}

// Listener implements api.Acceptor.
type Listener struct {
	lns      []net.Listener
	srv      *http.Server
	upgrader *protocol.Upgrader
	opts     Options
	log      *slog.Logger

	conns  chan api.Conn
	closed chan struct{}

	mu       sync.RWMutex
	isClosed bool
	pending  sync.WaitGroup
}

var _ api.Acceptor = (*Listener)(nil)

// Listen binds addr and starts serving upgrade requests. A host name is
// bound on every address it resolves to. A bind failure returns an error
// matching api.ErrBind.
func Listen(ctx context.Context, addr string, up *protocol.Upgrader, opts ...Option) (*Listener, error) {
	o := Options{
		HandshakeTimeout: 10 * time.Second,
		Backlog:          64,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	lc := net.ListenConfig{Control: socketControl(o)}
	lns, err := bindAll(ctx, lc, addr, o.Logger)
	if err != nil {
		return nil, api.NewError(api.ErrCodeBind, "listen "+addr, err).WithContext("addr", addr)
	}

	l := &Listener{
		lns:      lns,
		upgrader: up,
		opts:     o,
		log:      o.Logger.With("component", "listener", "addr", lns[0].Addr().String()),
		conns:    make(chan api.Conn, o.Backlog),
		closed:   make(chan struct{}),
	}
	l.srv = &http.Server{
		Handler:           http.HandlerFunc(l.serveUpgrade),
		ReadHeaderTimeout: o.HandshakeTimeout,
		ReadTimeout:       o.HandshakeTimeout,
		ConnState:         l.trackConnState,
		ErrorLog:          slog.NewLogLogger(l.log.Handler(), slog.LevelDebug),
	}
	// A failed upgrade ends the TCP connection instead of waiting for a retry.
	l.srv.SetKeepAlivesEnabled(false)

	for _, ln := range lns {
		go l.serve(ln)
	}
	return l, nil
}

func (l *Listener) serve(ln net.Listener) {
	err := l.srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.log.Error("listener stopped", "bound", ln.Addr().String(), "err", err)
		_ = l.Close()
	}
}

// serveUpgrade runs on the HTTP server's per-connection goroutine.
func (l *Listener) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	if l.isClosed {
		l.mu.RUnlock()
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	l.pending.Add(1)
	l.mu.RUnlock()
	defer l.pending.Done()

	c, err := l.upgrader.Upgrade(w, r)
	if err != nil {
		l.log.Warn("handshake rejected", "remote", r.RemoteAddr, "err", err)
		return
	}
	select {
	case l.conns <- c:
	case <-l.closed:
		_ = c.CloseWithReason(api.CloseGoingAway, "server shutting down")
		_ = c.Close()
	}
}

// trackConnState reports TCP connections that closed without upgrading.
// Upgraded connections leave the HTTP server as StateHijacked.
func (l *Listener) trackConnState(c net.Conn, state http.ConnState) {
	if state != http.StateClosed {
		return
	}
	remote := c.RemoteAddr().String()
	l.log.Debug("connection attempt dropped", "remote", remote)
	if l.opts.OnHandshakeError != nil {
		l.opts.OnHandshakeError(remote)
	}
}

// Accept returns the next upgraded connection.
func (l *Listener) Accept() (api.Conn, error) {
	select {
	case <-l.closed:
		return nil, api.ErrListenerClosed
	default:
	}
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, api.ErrListenerClosed
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.lns[0].Addr()
}

// Addrs returns every bound address.
func (l *Listener) Addrs() []net.Addr {
	addrs := make([]net.Addr, len(l.lns))
	for i, ln := range l.lns {
		addrs[i] = ln.Addr()
	}
	return addrs
}

// Close stops the listener. In-flight handshakes are aborted; connections
// that upgraded but were never accepted are closed with 1001.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.isClosed {
		l.mu.Unlock()
		return nil
	}
	l.isClosed = true
	close(l.closed)
	l.mu.Unlock()

	err := l.srv.Close()
	l.pending.Wait()
	for {
		select {
		case c := <-l.conns:
			_ = c.CloseWithReason(api.CloseGoingAway, "server shutting down")
			_ = c.Close()
		default:
			return err
		}
	}
}
