// File: echo/conn_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory api.Conn used by the handler tests.

package echo_test

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/momentics/hioload-echo/api"
)

// fakeConn is an in-memory api.Conn. Messages pushed on in are returned by
// Recv; once in is closed Recv returns end.
type fakeConn struct {
	in  chan api.Message
	end error

	mu        sync.Mutex
	out       []api.Message
	failAfter int // Send fails once len(out) reaches failAfter; <0 never
	sendErr   error
	sendDelay time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(end error) *fakeConn {
	return &fakeConn{
		in:        make(chan api.Message, 128),
		end:       end,
		failAfter: -1,
		closed:    make(chan struct{}),
	}
}

func (f *fakeConn) ID() string { return "fake-1" }

func (f *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (f *fakeConn) Recv() (api.Message, error) {
	select {
	case m, ok := <-f.in:
		if !ok {
			return api.Message{}, f.end
		}
		return m, nil
	case <-f.closed:
		return api.Message{}, api.NewError(api.ErrCodeConnection, "read", net.ErrClosed)
	}
}

func (f *fakeConn) Send(m api.Message) error {
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.closed:
		return api.NewError(api.ErrCodeConnection, "write", net.ErrClosed)
	default:
	}
	if f.failAfter >= 0 && len(f.out) >= f.failAfter {
		return f.sendErr
	}
	f.out = append(f.out, api.Message{Type: m.Type, Payload: append([]byte{}, m.Payload...)})
	return nil
}

func (f *fakeConn) CloseWithReason(int, string) error { return nil }

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeConn) sent() []api.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Message(nil), f.out...)
}

var errReset = api.NewError(api.ErrCodeConnection, "read", errors.New("connection reset by peer"))

var _ api.Conn = (*fakeConn)(nil)
