// Package prefs stores per-book narration and generation preferences.
// The blob is read once at orchestrator construction and written on
// every change; there is no ambient global state.
package prefs

import (
	"context"
	"sync"
)

// Preferences is the per-book preference blob.
type Preferences struct {
	Engine  string  `json:"engine,omitempty"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Quality string  `json:"quality,omitempty"`
	Model   string  `json:"model,omitempty"`
}

// Store provides access to preferences keyed by book identifier.
type Store interface {
	// Get returns the preferences for a book, or nil if none are stored.
	Get(ctx context.Context, bookID string) (*Preferences, error)

	// Set stores the preferences for a book, replacing any prior blob.
	Set(ctx context.Context, bookID string, p Preferences) error
}

// MemoryStore is an in-process Store for tests and single-binary use.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string]Preferences
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]Preferences)}
}

// Get returns the preferences for a book, or nil if none are stored.
func (s *MemoryStore) Get(_ context.Context, bookID string) (*Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.blobs[bookID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Set stores the preferences for a book.
func (s *MemoryStore) Set(_ context.Context, bookID string, p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[bookID] = p
	return nil
}

// Verify interface
var _ Store = (*MemoryStore)(nil)
