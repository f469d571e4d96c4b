package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache is a read-through cache with a freshness TTL. Entries outlive their TTL
// so that callers can fall back to a stale value when the source is unavailable.
type Cache[T any] interface {
	// Get returns the value only while it is younger than the TTL.
	Get(ctx context.Context, key string) (T, bool)
	// GetStale returns the last stored value regardless of its age.
	GetStale(ctx context.Context, key string) (T, bool)
	Set(ctx context.Context, key string, value T)
	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string)
}

type entry[T any] struct {
	value    T
	storedAt time.Time
}

type Memory[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[T]
}

// NewMemory creates an in-process cache. A zero ttl makes every Get a miss.
func NewMemory[T any](ttl time.Duration) *Memory[T] {
	return &Memory[T]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[T]),
	}
}

// WithNow replaces the time source, used by tests.
func (m *Memory[T]) WithNow(now func() time.Time) *Memory[T] {
	m.now = now
	return m
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || m.now().Sub(e.storedAt) >= m.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (m *Memory[T]) GetStale(_ context.Context, key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e.value, ok
}

func (m *Memory[T]) Set(_ context.Context, key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry[T]{value: value, storedAt: m.now()}
}

func (m *Memory[T]) DeletePrefix(_ context.Context, prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
}
