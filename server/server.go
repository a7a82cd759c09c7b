// File: server/server.go
// Package server runs the accept loop and supervises one echo task per
// WebSocket connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"

	"github.com/momentics/hioload-echo/api"
	"github.com/momentics/hioload-echo/control"
	"github.com/momentics/hioload-echo/echo"
	"github.com/momentics/hioload-echo/internal/session"
	"github.com/momentics/hioload-echo/pool"
	"github.com/momentics/hioload-echo/protocol"
	"github.com/momentics/hioload-echo/transport"
)

// Metric keys published through the control facade.
const (
	MetricAccepted          = "conn.accepted"
	MetricClosedNormal      = "conn.closed_normal"
	MetricClosedError       = "conn.closed_error"
	MetricHandshakeFailures = "handshake.failures"
	MetricMessagesEchoed    = "messages.echoed"
	MetricBytesEchoed       = "bytes.echoed"
)

const sessionShards = 16

// Server owns the listener and every connection task spawned from it.
type Server struct {
	cfg      *Config
	log      *slog.Logger
	control  *control.Control
	acceptor api.Acceptor
	handler  api.ConnHandler
	sessions *session.Manager

	// parent of every connection context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running      atomic.Bool
	loopDone     chan struct{}
	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownDone chan struct{}
	forceOnce    sync.Once
	force        chan struct{}

	startedAt time.Time
}

var _ api.GracefulShutdown = (*Server)(nil)

// New validates cfg, binds the listening socket and prepares the server.
// A bind failure is returned as an api.Error matching api.ErrBind.
func New(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:          cfg,
		sessions:     session.NewManager(sessionShards),
		loopDone:     make(chan struct{}),
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
		force:        make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.control == nil {
		s.control = control.New()
	}
	if s.handler == nil {
		s.handler = echo.New(
			echo.WithPipelineDepth(cfg.PipelineDepth),
			echo.WithLogger(s.log),
			echo.WithObserver(func(m api.Message) {
				s.control.AddMetric(MetricMessagesEchoed, 1)
				s.control.AddMetric(MetricBytesEchoed, int64(len(m.Payload)))
			}),
		)
	}
	if s.acceptor == nil {
		bufs := pool.NewBufferPool()
		pcfg := cfg.protocolConfig()
		pcfg.WriteBufferPool = bufs
		ln, err := transport.Listen(context.Background(), cfg.Addr(), protocol.NewUpgrader(pcfg),
			transport.WithHandshakeTimeout(cfg.HandshakeTimeout),
			transport.WithBacklog(cfg.Backlog),
			transport.WithReusePort(cfg.ReusePort),
			transport.WithDeferAccept(cfg.DeferAccept),
			transport.WithLogger(s.log),
			transport.WithHandshakeErrorHook(func(string) {
				s.control.AddMetric(MetricHandshakeFailures, 1)
			}),
		)
		if err != nil {
			return nil, err
		}
		s.acceptor = ln
		s.control.RegisterDebugProbe("pool.write_buffers", func() any { return bufs.Stats() })
	}
	s.control.RegisterDebugProbe("connections.active", func() any { return s.sessions.Len() })
	if err := s.control.SetConfig(cfg.snapshot()); err != nil {
		s.acceptor.Close()
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.startedAt = time.Now()
	return s, nil
}

// Addr reports the bound address, useful when Port is 0.
func (s *Server) Addr() string {
	return s.acceptor.Addr().String()
}

// GetControl exposes the control facade.
func (s *Server) GetControl() *control.Control {
	return s.control
}

// Serve runs the accept loop until ctx is cancelled or Shutdown is called.
// It returns api.ErrServerClosed once every connection task has finished.
func (s *Server) Serve(ctx context.Context) error {
	select {
	case <-s.shutdownCh:
		return api.ErrServerClosed
	default:
	}
	if !s.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	select {
	case <-s.shutdownCh:
		close(s.loopDone)
		<-s.shutdownDone
		return api.ErrServerClosed
	default:
	}
	stop := context.AfterFunc(ctx, func() {
		_ = s.Shutdown(context.Background())
	})
	defer stop()

	s.log.Info("listening", "addr", s.Addr())
	if m, ok := s.acceptor.(interface{ Addrs() []net.Addr }); ok {
		for _, a := range m.Addrs()[1:] {
			s.log.Info("listening", "addr", a.String())
		}
	}
	err := s.acceptLoop()
	close(s.loopDone)

	select {
	case <-s.shutdownCh:
		<-s.shutdownDone
		return api.ErrServerClosed
	default:
	}
	// listener failed on its own; take the connections down with it
	_ = s.Shutdown(context.Background())
	return fmt.Errorf("accept: %w", err)
}

// acceptLoop backs off on transient accept errors the way net/http does.
func (s *Server) acceptLoop() error {
	var delay time.Duration
	for {
		c, err := s.acceptor.Accept()
		if err != nil {
			if errors.Is(err, api.ErrListenerClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			s.log.Warn("accept failed", "err", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-s.shutdownCh:
			}
			continue
		}
		delay = 0
		s.spawn(c)
	}
}

func (s *Server) spawn(c api.Conn) {
	ctx, cancel := context.WithCancel(s.ctx)
	sess := session.New(c, cancel)
	if err := s.sessions.Add(sess); err != nil {
		s.log.Error("register connection", "conn", c.ID(), "err", err)
		cancel()
		_ = c.Close()
		return
	}
	s.control.AddMetric(MetricAccepted, 1)
	s.wg.Add(1)
	go s.runSession(ctx, sess)
}

func (s *Server) runSession(ctx context.Context, sess *session.Session) {
	defer s.wg.Done()
	c := sess.Conn()
	log := s.log.With("conn", c.ID(), "remote", c.RemoteAddr().String())

	if err := sess.Transition(api.StateOpen); err != nil {
		log.Error("session state", "err", err)
	}
	log.Info("connection open")

	err := s.handle(ctx, c)
	_ = c.Close()
	sess.Cancel()

	attrs := []any{"duration", time.Since(sess.StartedAt())}
	if sc, ok := c.(interface{ Stats() protocol.ConnStats }); ok {
		st := sc.Stats()
		attrs = append(attrs, "messages_in", st.MessagesIn, "messages_out", st.MessagesOut,
			"bytes_in", st.BytesIn, "bytes_out", st.BytesOut)
	}
	final, metric := api.StateClosedNormal, MetricClosedNormal
	if err != nil {
		final, metric = api.StateClosedError, MetricClosedError
	}
	if terr := sess.Transition(final); terr != nil {
		log.Error("session state", "err", terr)
	}
	s.control.AddMetric(metric, 1)
	attrs = append(attrs, "state", sess.State().String())
	if err != nil {
		log.Warn("connection closed with error", append(attrs, "err", err)...)
	} else {
		log.Info("connection closed", attrs...)
	}
	s.sessions.Delete(c.ID())
}

// handle contains a handler panic to the connection that raised it.
func (s *Server) handle(ctx context.Context, c api.Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panic", "conn", c.ID(), "panic", r)
			_ = c.CloseWithReason(api.CloseInternalError, "internal error")
			err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return s.handler.Handle(ctx, c)
}

// Shutdown stops accepting, sends close 1001 to every open connection and
// waits for the tasks to drain. Stragglers are force-closed after
// ShutdownTimeout, or as soon as ctx is done, in which case ctx.Err() is
// returned. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
		go s.shutdown()
	})
	select {
	case <-s.shutdownDone:
		return nil
	case <-ctx.Done():
		s.forceOnce.Do(func() { close(s.force) })
		<-s.shutdownDone
		return ctx.Err()
	}
}

func (s *Server) shutdown() {
	defer close(s.shutdownDone)
	defer s.cancel()

	if err := s.acceptor.Close(); err != nil {
		s.log.Warn("close listener", "err", err)
	}
	if s.running.Load() {
		<-s.loopDone
	}

	n := 0
	s.sessions.Range(func(sess *session.Session) {
		n++
		if err := sess.Conn().CloseWithReason(api.CloseGoingAway, "server shutdown"); err != nil {
			s.log.Debug("send close frame", "conn", sess.ID(), "err", err)
		}
	})
	s.log.Info("shutting down", "open", n)

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		return
	case <-timer.C:
	case <-s.force:
	}
	s.log.Warn("forcing close", "remaining", s.sessions.Len())
	s.cancel()
	s.sessions.Range(func(sess *session.Session) {
		_ = sess.Conn().Close()
	})
	<-drained
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() api.Stats {
	return api.Stats{
		Accepted:          s.control.Metric(MetricAccepted),
		Active:            int64(s.sessions.Len()),
		HandshakeFailures: s.control.Metric(MetricHandshakeFailures),
		ClosedNormal:      s.control.Metric(MetricClosedNormal),
		ClosedError:       s.control.Metric(MetricClosedError),
		MessagesEchoed:    s.control.Metric(MetricMessagesEchoed),
		BytesEchoed:       s.control.Metric(MetricBytesEchoed),
		StartedAt:         s.startedAt,
	}
}

// ListenAndServe binds host:port with defaults otherwise and serves until
// ctx is cancelled. A nil return means a clean, ctx-driven stop.
func ListenAndServe(ctx context.Context, host string, port int, opts ...ServerOption) error {
	cfg := DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	return Run(ctx, cfg, opts...)
}

// Run is ListenAndServe with a full Config.
func Run(ctx context.Context, cfg *Config, opts ...ServerOption) error {
	s, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	err = s.Serve(ctx)
	if errors.Is(err, api.ErrServerClosed) && ctx.Err() != nil {
		return nil
	}
	return err
}
