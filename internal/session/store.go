// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session Manager for high concurrency.

package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// ErrDuplicate is returned by Add for an ID that is already registered.
var ErrDuplicate = errors.New("session already registered")

// Manager implements sharded storage for sessions.
type Manager struct {
	shards []*shard
	mask   uint32
	count  atomic.Int64
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager constructs a sharded manager with shardCount shards,
// rounded up to a power of two.
func NewManager(shardCount int) *Manager {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return &Manager{shards: shards, mask: m - 1}
}

func (m *Manager) shard(id string) *shard {
	return m.shards[fnv32(id)&m.mask]
}

// Add registers s.
func (m *Manager) Add(s *Session) error {
	sh := m.shard(s.ID())
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[s.ID()]; ok {
		return ErrDuplicate
	}
	sh.sessions[s.ID()] = s
	m.count.Add(1)
	return nil
}

// Delete removes the session. It does not cancel it.
func (m *Manager) Delete(id string) {
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; ok {
		delete(sh.sessions, id)
		m.count.Add(-1)
	}
}

// Range applies fn to a snapshot of all sessions; fn may call Delete.
func (m *Manager) Range(fn func(*Session)) {
	var snapshot []*Session
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			snapshot = append(snapshot, s)
		}
		sh.mu.RUnlock()
	}
	for _, s := range snapshot {
		fn(s)
	}
}

// Len returns the number of registered sessions.
func (m *Manager) Len() int {
	return int(m.count.Load())
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
