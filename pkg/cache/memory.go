package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Cache and Counter implementation. Entries are
// replaced wholesale under a write lock; reads take the shared lock, so a
// recalibration publishing a new value never blocks concurrent readers on
// anything slower than a map read.
//
// The clock is injectable so TTL behavior is deterministically testable.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]memoryEntry
	counters map[string]counterEntry
	now      func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

type counterEntry struct {
	n         int64
	expiresAt time.Time
}

// NewMemory returns an empty in-memory cache using the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock returns an in-memory cache with an injected clock.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries:  make(map[string]memoryEntry),
		counters: make(map[string]counterEntry),
		now:      now,
	}
}

// Get returns the cached bytes for key, expiring lazily on read.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key with the given TTL (zero = no expiry).
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Invalidate removes the given keys.
func (m *Memory) Invalidate(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

// Increment bumps the rolling counter at key, resetting it when its
// window has elapsed.
func (m *Memory) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.counters[key]
	if !ok || (!c.expiresAt.IsZero() && m.now().After(c.expiresAt)) {
		c = counterEntry{}
		if window > 0 {
			c.expiresAt = m.now().Add(window)
		}
	}
	c.n++
	m.counters[key] = c
	return c.n, nil
}
