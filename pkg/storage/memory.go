package storage

import (
	"sync"
)

// MemoryStore implements Store using an in-memory map.
// Values implementing Cloner are copied on the way in and out, so callers
// never share mutable state with the store.
type MemoryStore[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{
		items: make(map[string]V),
	}
}

// Insert adds a value if the key is absent
func (s *MemoryStore[V]) Insert(key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		return ErrAlreadyExists
	}

	s.items[key] = clone(value)
	return nil
}

// Put stores a value, replacing any previous one
func (s *MemoryStore[V]) Put(key string, value V) (V, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, replaced := s.items[key]
	s.items[key] = clone(value)

	return previous, replaced, nil
}

// Get retrieves a value by key
func (s *MemoryStore[V]) Get(key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.items[key]
	if !exists {
		var zero V
		return zero, ErrNotFound
	}

	return clone(value), nil
}

// Exists reports whether a key is present
func (s *MemoryStore[V]) Exists(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.items[key]
	return exists, nil
}

// Delete removes a value and returns it
func (s *MemoryStore[V]) Delete(key string) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, exists := s.items[key]
	if !exists {
		var zero V
		return zero, ErrNotFound
	}

	delete(s.items, key)
	return value, nil
}

// DeleteFunc removes every entry for which fn returns true and reports how
// many were removed
func (s *MemoryStore[V]) DeleteFunc(fn func(key string, value V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, value := range s.items {
		if fn(key, value) {
			delete(s.items, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of stored values
func (s *MemoryStore[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

func clone[V any](value V) V {
	if c, ok := any(value).(Cloner[V]); ok {
		return c.Clone()
	}
	return value
}
