// Package jobs tracks active orchestration runs. At most one generation
// run and one narration run may be active per book; re-entrant starts
// are rejected here, at the caller layer, not inside the orchestrators.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunActive is returned when a run of the same kind is already active
// for the book.
var ErrRunActive = errors.New("a run is already active for this book")

// Kind identifies the run type being gated.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindAudio      Kind = "audio"
)

// Run is one active orchestration run. The cancellation token for the
// run is the context returned by Begin; Cancel trips it.
type Run struct {
	ID        string
	Kind      Kind
	StartedAt time.Time

	key    runKey
	cancel context.CancelFunc

	mu sync.Mutex
	// bookID may be assigned mid-run (AdoptBook) once the server names
	// the book, so reads go through the accessor.
	bookID   string
	snapshot any
}

// BookID returns the book this run is generating, or "" if the server
// has not assigned one yet.
func (r *Run) BookID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookID
}

// SetSnapshot stores the latest progress snapshot for status queries.
func (r *Run) SetSnapshot(v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = v
}

// Snapshot returns the latest progress snapshot, or nil.
func (r *Run) Snapshot() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

type runKey struct {
	bookID string
	kind   Kind
}

// recentLimit bounds how many finished runs are kept for status queries.
const recentLimit = 32

// Manager is the single-active-run registry.
type Manager struct {
	logger *slog.Logger

	mu          sync.Mutex
	active      map[runKey]*Run
	recent      map[string]*Run
	recentOrder []string
}

// NewManager creates a run manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		active: make(map[runKey]*Run),
		recent: make(map[string]*Run),
	}
}

// Begin registers a new run and returns its cancellation context. It
// fails with ErrRunActive if a run of the same kind is already active
// for the book. The caller must call Finish when the run ends.
func (m *Manager) Begin(ctx context.Context, bookID string, kind Kind) (context.Context, *Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID := uuid.New().String()

	// Runs for a not-yet-created book have no bookID; key them by run ID
	// so concurrent new-book runs don't collide. AdoptBook re-keys them
	// once the server assigns a book.
	keyBook := bookID
	if keyBook == "" {
		keyBook = runID
	}
	key := runKey{bookID: keyBook, kind: kind}
	if existing, ok := m.active[key]; ok {
		return nil, nil, fmt.Errorf("%w (run %s started %s)", ErrRunActive, existing.ID, existing.StartedAt.Format(time.RFC3339))
	}

	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:        runID,
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		bookID:    bookID,
		key:       key,
		cancel:    cancel,
	}
	m.active[key] = run

	m.logger.Info("run started", "run_id", run.ID, "book_id", bookID, "kind", kind)
	return runCtx, run, nil
}

// AdoptBook records the server-assigned book ID on a run that started
// without one and re-keys the run under it, so the single-active-run
// guarantee and book-keyed cancellation cover books created mid-run.
// Returns ErrRunActive if another run of the same kind already holds
// the book; the run keeps its current key in that case.
func (m *Manager) AdoptBook(run *Run, bookID string) error {
	if run == nil || bookID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.BookID() == bookID {
		return nil
	}

	newKey := runKey{bookID: bookID, kind: run.Kind}
	if existing, ok := m.active[newKey]; ok && existing.ID != run.ID {
		return fmt.Errorf("%w (run %s started %s)", ErrRunActive, existing.ID, existing.StartedAt.Format(time.RFC3339))
	}

	if current, ok := m.active[run.key]; ok && current.ID == run.ID {
		delete(m.active, run.key)
		m.active[newKey] = run
	}
	run.key = newKey

	run.mu.Lock()
	run.bookID = bookID
	run.mu.Unlock()

	m.logger.Info("run adopted book", "run_id", run.ID, "book_id", bookID, "kind", run.Kind)
	return nil
}

// Finish removes a run from the registry and releases its context.
func (m *Manager) Finish(run *Run) {
	if run == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[run.key]; ok && current.ID == run.ID {
		delete(m.active, run.key)
	}

	// Keep a bounded window of finished runs so status queries still
	// resolve just after completion.
	m.recent[run.ID] = run
	m.recentOrder = append(m.recentOrder, run.ID)
	for len(m.recentOrder) > recentLimit {
		delete(m.recent, m.recentOrder[0])
		m.recentOrder = m.recentOrder[1:]
	}

	run.cancel()
	m.logger.Info("run finished", "run_id", run.ID, "book_id", run.BookID(), "kind", run.Kind)
}

// Cancel requests cooperative cancellation of the active run for a book
// and kind. Returns false if no run is active. Already-recorded progress
// is preserved by the orchestrators.
func (m *Manager) Cancel(bookID string, kind Kind) bool {
	m.mu.Lock()
	run, ok := m.active[runKey{bookID: bookID, kind: kind}]
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.logger.Info("run cancellation requested", "run_id", run.ID, "book_id", bookID, "kind", kind)
	run.cancel()
	return true
}

// Active returns the active run for a book and kind, if any.
func (m *Manager) Active(bookID string, kind Kind) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.active[runKey{bookID: bookID, kind: kind}]
	return run, ok
}

// Runs returns all currently active runs.
func (m *Manager) Runs() []*Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Run, 0, len(m.active))
	for _, run := range m.active {
		out = append(out, run)
	}
	return out
}

// CancelRun requests cancellation of an active run by its ID.
// Returns false if no run with that ID is active.
func (m *Manager) CancelRun(runID string) bool {
	m.mu.Lock()
	var run *Run
	for _, r := range m.active {
		if r.ID == runID {
			run = r
			break
		}
	}
	m.mu.Unlock()

	if run == nil {
		return false
	}
	m.logger.Info("run cancellation requested", "run_id", run.ID, "book_id", run.BookID(), "kind", run.Kind)
	run.cancel()
	return true
}

// Find returns a run by its ID, checking active runs first and then the
// recently finished window.
func (m *Manager) Find(runID string) (*Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.active {
		if run.ID == runID {
			return run, true
		}
	}
	if run, ok := m.recent[runID]; ok {
		return run, true
	}
	return nil, false
}
