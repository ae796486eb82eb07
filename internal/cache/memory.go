// ABOUTME: Thread-safe in-memory TTL cache backend for conversations.
// ABOUTME: Bounded by entry count with oldest-first eviction; expired entries are swept periodically.

package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// defaultMaxEntries bounds a Memory cache created with maxEntries <= 0.
const defaultMaxEntries = 1000

// memoryEntry stores the value, write time and list element for a cached key.
type memoryEntry struct {
	value     []byte
	timestamp time.Time
	element   *list.Element
}

// Memory is a thread-safe, TTL-based, size-limited key-value cache.
// Uses a doubly-linked list to keep write order for O(1) eviction.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	order   *list.List // keys in write order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewMemory creates a memory cache. A ttl of zero disables expiry.
// A background goroutine periodically removes expired entries when ttl > 0.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	m := &Memory{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxEntries,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go m.cleanup()
	}
	return m
}

// Get returns a copy of the stored value if present and not expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrClosed
	}
	entry, ok := m.entries[key]
	if !ok || m.expired(entry, time.Now()) {
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores a copy of value, evicting the oldest entry when at capacity.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	now := time.Now()

	if entry, exists := m.entries[key]; exists {
		entry.value = stored
		entry.timestamp = now
		m.order.MoveToBack(entry.element)
		return nil
	}

	if len(m.entries) >= m.maxSize {
		m.evictOldest()
	}

	elem := m.order.PushBack(key)
	m.entries[key] = &memoryEntry{
		value:     stored,
		timestamp: now,
		element:   elem,
	}
	return nil
}

// Len reports the number of entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) expired(entry *memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(entry.timestamp) >= m.ttl
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (m *Memory) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.entries, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (m *Memory) cleanup() {
	interval := m.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.done:
			return
		}
	}
}

// sweep removes all expired entries from the cache.
func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for key, entry := range m.entries {
		if m.expired(entry, now) {
			m.order.Remove(entry.element)
			delete(m.entries, key)
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
	return nil
}
