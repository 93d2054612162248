package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type entry struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Cache. Values are stored encoded, so callers
// always decode a private copy.
type Memory struct {
	clock Clock

	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return NewMemoryWithClock(realClock{})
}

// NewMemoryWithClock creates a Memory with a custom clock (for testing).
func NewMemoryWithClock(clock Clock) *Memory {
	return &Memory{clock: clock, entries: make(map[string]entry)}
}

func (m *Memory) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	// Fast path: read lock for a live hit.
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if !e.expiresAt.IsZero() && !m.clock.Now().Before(e.expiresAt) {
		m.mu.Lock()
		// Double-check after acquiring write lock.
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return false, nil
	}

	if err := json.Unmarshal(e.data, dst); err != nil {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (m *Memory) SetJSON(_ context.Context, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	e := entry{data: b}
	if ttl > 0 {
		e.expiresAt = m.clock.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
