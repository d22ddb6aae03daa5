package jobs

import (
	"context"
	"errors"
	"testing"
)

func TestBeginRejectsDuplicateRun(t *testing.T) {
	m := NewManager(nil)

	_, run, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if _, _, err := m.Begin(context.Background(), "b1", KindGeneration); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}
}

func TestBeginAllowsDifferentKinds(t *testing.T) {
	m := NewManager(nil)

	_, gen, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(gen)

	_, aud, err := m.Begin(context.Background(), "b1", KindAudio)
	if err != nil {
		t.Fatalf("narration must not be gated by generation: %v", err)
	}
	m.Finish(aud)
}

func TestBeginAllowsConcurrentNewBookRuns(t *testing.T) {
	m := NewManager(nil)

	_, r1, err := m.Begin(context.Background(), "", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(r1)

	_, r2, err := m.Begin(context.Background(), "", KindGeneration)
	if err != nil {
		t.Fatalf("runs without a book ID must not collide: %v", err)
	}
	m.Finish(r2)
}

func TestAdoptBookGatesMidRunAssignment(t *testing.T) {
	m := NewManager(nil)

	// A new-book run starts with no book ID; the server names the book
	// mid-run.
	_, run, err := m.Begin(context.Background(), "", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if err := m.AdoptBook(run, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := run.BookID(); got != "b1" {
		t.Fatalf("expected adopted book b1, got %q", got)
	}

	// A resume for the assigned book must be rejected while the run is
	// still generating it.
	if _, _, err := m.Begin(context.Background(), "b1", KindGeneration); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive for the adopted book, got %v", err)
	}

	// Book-keyed cancellation now finds the run.
	if !m.Cancel("b1", KindGeneration) {
		t.Fatal("expected cancel by book to find the adopted run")
	}
}

func TestAdoptBookIsIdempotent(t *testing.T) {
	m := NewManager(nil)

	_, run, err := m.Begin(context.Background(), "", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if err := m.AdoptBook(run, "b1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.AdoptBook(run, "b1"); err != nil {
		t.Fatalf("re-adopting the same book must be a no-op: %v", err)
	}
	if _, ok := m.Active("b1", KindGeneration); !ok {
		t.Fatal("expected the run to stay active under the adopted book")
	}
}

func TestAdoptBookRejectsHeldBook(t *testing.T) {
	m := NewManager(nil)

	_, holder, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(holder)

	_, run, err := m.Begin(context.Background(), "", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if err := m.AdoptBook(run, "b1"); !errors.Is(err, ErrRunActive) {
		t.Fatalf("expected ErrRunActive for a held book, got %v", err)
	}
	// The run stays active and cancellable under its original key.
	if !m.CancelRun(run.ID) {
		t.Fatal("expected the run to remain active after a rejected adoption")
	}
}

func TestCancelTripsRunContext(t *testing.T) {
	m := NewManager(nil)

	ctx, run, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if !m.Cancel("b1", KindGeneration) {
		t.Fatal("expected cancel to find the active run")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel must trip the run context")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	m := NewManager(nil)
	if m.Cancel("missing", KindGeneration) {
		t.Fatal("expected false for an unknown book")
	}
	if m.CancelRun("missing-id") {
		t.Fatal("expected false for an unknown run ID")
	}
}

func TestCancelRunByID(t *testing.T) {
	m := NewManager(nil)

	ctx, run, err := m.Begin(context.Background(), "b1", KindAudio)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Finish(run)

	if !m.CancelRun(run.ID) {
		t.Fatal("expected cancel to find the run by ID")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel must trip the run context")
	}
}

func TestFinishReleasesSlotAndKeepsRunFindable(t *testing.T) {
	m := NewManager(nil)

	_, run, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	run.SetSnapshot("final state")
	m.Finish(run)

	// The slot is free again.
	_, next, err := m.Begin(context.Background(), "b1", KindGeneration)
	if err != nil {
		t.Fatalf("finish must release the slot: %v", err)
	}
	m.Finish(next)

	// Status queries still resolve shortly after completion.
	found, ok := m.Find(run.ID)
	if !ok {
		t.Fatal("finished run must stay findable")
	}
	if got := found.Snapshot(); got != "final state" {
		t.Fatalf("unexpected snapshot: %v", got)
	}

	// But it is no longer cancellable or listed as active.
	if m.CancelRun(run.ID) {
		t.Fatal("a finished run must not be cancellable")
	}
	for _, r := range m.Runs() {
		if r.ID == run.ID {
			t.Fatal("finished run must not appear in active runs")
		}
	}
}

func TestRecentWindowIsBounded(t *testing.T) {
	m := NewManager(nil)

	var first *Run
	for i := 0; i <= recentLimit; i++ {
		_, run, err := m.Begin(context.Background(), "", KindGeneration)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first == nil {
			first = run
		}
		m.Finish(run)
	}

	if _, ok := m.Find(first.ID); ok {
		t.Fatal("oldest finished run must be evicted once the window is full")
	}
}

func TestRunsListsActive(t *testing.T) {
	m := NewManager(nil)

	_, gen, _ := m.Begin(context.Background(), "b1", KindGeneration)
	_, aud, _ := m.Begin(context.Background(), "b2", KindAudio)
	defer m.Finish(gen)
	defer m.Finish(aud)

	runs := m.Runs()
	if len(runs) != 2 {
		t.Fatalf("expected 2 active runs, got %d", len(runs))
	}
}
