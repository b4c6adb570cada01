package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Memory is an in-process Store backed by a mutex-guarded map. Expired
// entries are dropped lazily when read and, if a janitor interval was
// given, by a periodic background sweep.
type Memory[V any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry[V]
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory returns an empty in-memory store without a background sweep.
// Expired entries linger until the next read touches them.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{
		entries: make(map[string]memoryEntry[V]),
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// NewMemoryWithJanitor returns an in-memory store that additionally sweeps
// expired entries every interval until Close is called.
func NewMemoryWithJanitor[V any](interval time.Duration) *Memory[V] {
	m := NewMemory[V]()
	go m.janitor(interval)
	return m
}

func (m *Memory[V]) Insert(ctx context.Context, key string, value V, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry[V]{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory[V]) Get(ctx context.Context, key string) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		var zero V
		return zero, ErrNotFound
	}
	return entry.value, nil
}

func (m *Memory[V]) Update(ctx context.Context, key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return ErrNotFound
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		return ErrNotFound
	}
	entry.value = value
	m.entries[key] = entry
	return nil
}

func (m *Memory[V]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of entries currently held, including any that
// expired but have not been swept yet.
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the janitor goroutine, if one was started. Safe to call
// more than once.
func (m *Memory[V]) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Memory[V]) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Memory[V]) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
		}
	}
}
