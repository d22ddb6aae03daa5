package generation

import (
	"reflect"
	"testing"
)

func TestModelCountersNeverDecrease(t *testing.T) {
	m := NewModel(nil)

	m.Apply(Update{ChaptersCompleted: intPtr(3), Progress: intPtr(40)})
	m.Apply(Update{ChaptersCompleted: intPtr(1), Progress: intPtr(20)})

	job := m.Snapshot()
	if job.ChaptersCompleted != 3 {
		t.Fatalf("expected chaptersCompleted 3, got %d", job.ChaptersCompleted)
	}
	if job.Progress != 40 {
		t.Fatalf("expected progress 40, got %d", job.Progress)
	}
}

func TestModelBookIDWriteOnce(t *testing.T) {
	m := NewModel(nil)

	m.Apply(Update{BookID: "book-1"})
	m.Apply(Update{BookID: "book-2"})

	if got := m.Snapshot().BookID; got != "book-1" {
		t.Fatalf("expected book-1, got %q", got)
	}
}

func TestModelProgressCappedBeforeCompletion(t *testing.T) {
	m := NewModel(nil)

	m.Apply(Update{Phase: phasePtr(PhaseGenerating), Progress: intPtr(100)})
	if got := m.Snapshot().Progress; got != 99 {
		t.Fatalf("expected progress capped at 99 while generating, got %d", got)
	}

	m.Apply(Update{Phase: phasePtr(PhaseCompleted), Progress: intPtr(100)})
	if got := m.Snapshot().Progress; got != 100 {
		t.Fatalf("expected progress 100 at completion, got %d", got)
	}
}

func TestModelProgressClamped(t *testing.T) {
	m := NewModel(nil)

	m.Apply(Update{Progress: intPtr(-5)})
	if got := m.Snapshot().Progress; got != 0 {
		t.Fatalf("expected progress 0, got %d", got)
	}

	m.Apply(Update{Phase: phasePtr(PhaseCompleted), Progress: intPtr(250)})
	if got := m.Snapshot().Progress; got != 100 {
		t.Fatalf("expected progress clamped to 100, got %d", got)
	}
}

func TestModelCancelPreservesProgress(t *testing.T) {
	m := NewModel(nil)

	m.Apply(Update{
		BookID:            "book-1",
		ChaptersCompleted: intPtr(4),
		Progress:          intPtr(40),
	})
	m.MarkCancelled()

	job := m.Snapshot()
	if !job.Cancelled {
		t.Fatal("expected cancelled job")
	}
	if job.ChaptersCompleted != 4 || job.Progress != 40 || job.BookID != "book-1" {
		t.Fatalf("cancellation changed recorded progress: %+v", job)
	}
}

func TestModelCallbackReceivesSnapshots(t *testing.T) {
	var got []Job
	m := NewModel(func(j Job) { got = append(got, j) })

	m.Apply(Update{Phase: phasePtr(PhaseCreating)})
	m.Apply(Update{ChaptersCompleted: intPtr(2), CurrentBatch: []int{1, 2}})
	m.MarkCancelled()

	if len(got) != 3 {
		t.Fatalf("expected 3 callbacks, got %d", len(got))
	}
	if got[0].Phase != PhaseCreating {
		t.Fatalf("expected creating phase in first snapshot, got %s", got[0].Phase)
	}
	if !reflect.DeepEqual(got[1].CurrentBatch, []int{1, 2}) {
		t.Fatalf("expected batch [1 2], got %v", got[1].CurrentBatch)
	}
	if !got[2].Cancelled {
		t.Fatal("expected cancelled flag in final snapshot")
	}

	// Snapshots are copies; mutating one must not affect the model.
	got[1].CurrentBatch[0] = 99
	if m.Snapshot().CurrentBatch[0] != 1 {
		t.Fatal("snapshot shares state with model")
	}
}
