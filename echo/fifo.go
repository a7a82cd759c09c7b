// File: echo/fifo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded blocking FIFO between the pipelined reader and writer.

package echo

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-echo/api"
)

// fifo is a single-producer single-consumer queue of messages.
// push blocks while limit messages are pending; pop blocks while empty.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	limit  int
	closed bool
}

func newFIFO(limit int) *fifo {
	f := &fifo{q: queue.New(), limit: limit}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// push enqueues msg. Returns false if the fifo was closed.
func (f *fifo) push(msg api.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.closed && f.q.Length() >= f.limit {
		f.cond.Wait()
	}
	if f.closed {
		return false
	}
	f.q.Add(msg)
	f.cond.Broadcast()
	return true
}

// pop dequeues the oldest message. After close, pending messages are
// still returned; ok is false once the fifo is closed and drained.
func (f *fifo) pop() (msg api.Message, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for !f.closed && f.q.Length() == 0 {
		f.cond.Wait()
	}
	if f.q.Length() == 0 {
		return api.Message{}, false
	}
	msg = f.q.Remove().(api.Message)
	f.cond.Broadcast()
	return msg, true
}

// close wakes both sides. Idempotent.
func (f *fifo) close() {
	f.mu.Lock()
	f.closed = true
	f.cond.Broadcast()
	f.mu.Unlock()
}
