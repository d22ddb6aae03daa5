// Package cache holds client-visible generation results keyed by book.
// Run finalization invalidates a book's entry so stale results are never
// served after a regeneration.
package cache

import (
	"context"
	"sync"
	"time"
)

// ResultCache caches rendered book results keyed by book identifier.
type ResultCache interface {
	// Get returns the cached result for a book, if present.
	Get(ctx context.Context, bookID string) ([]byte, bool, error)

	// Set stores a result for a book.
	Set(ctx context.Context, bookID string, data []byte, ttl time.Duration) error

	// InvalidateBook drops the cached result for a book. Idempotent:
	// invalidating an absent entry is not an error.
	InvalidateBook(ctx context.Context, bookID string) error
}

// Memory is an in-process ResultCache for tests and single-binary use.
// TTLs are honored lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an empty in-memory result cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get returns the cached result for a book, if present and unexpired.
func (m *Memory) Get(_ context.Context, bookID string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[bookID]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, bookID)
		return nil, false, nil
	}
	return e.data, true, nil
}

// Set stores a result for a book.
func (m *Memory) Set(_ context.Context, bookID string, data []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.entries[bookID] = e
	return nil
}

// InvalidateBook drops the cached result for a book.
func (m *Memory) InvalidateBook(_ context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, bookID)
	return nil
}

// Verify interface
var _ ResultCache = (*Memory)(nil)
