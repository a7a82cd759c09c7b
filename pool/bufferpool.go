// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Shared write-buffer pool for upgraded connections.
// Idle connections hold no write buffer; the buffer returns here between messages.

package pool

import (
	"sync"
	"sync/atomic"
)

// BufferPool satisfies websocket.BufferPool. Get returns nil when the pool
// is empty so the caller allocates a fresh buffer.
type BufferPool struct {
	pool sync.Pool

	gets atomic.Int64
	hits atomic.Int64
	puts atomic.Int64
}

// Stats aggregates buffer reuse counters for observability.
type Stats struct {
	Gets int64
	Hits int64
	Puts int64
}

// NewBufferPool returns an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get returns a pooled value or nil.
func (p *BufferPool) Get() interface{} {
	p.gets.Add(1)
	v := p.pool.Get()
	if v != nil {
		p.hits.Add(1)
	}
	return v
}

// Put returns v to the pool. nil is ignored.
func (p *BufferPool) Put(v interface{}) {
	if v == nil {
		return
	}
	p.puts.Add(1)
	p.pool.Put(v)
}

// Stats returns a snapshot of the counters.
func (p *BufferPool) Stats() Stats {
	return Stats{
		Gets: p.gets.Load(),
		Hits: p.hits.Load(),
		Puts: p.puts.Load(),
	}
}
