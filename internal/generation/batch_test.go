package generation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fablepress/fable/internal/gensvc"
)

type advanceStep struct {
	resp *gensvc.AdvanceResponse
	err  error
	// do runs after the step is consumed, e.g. to cancel the run context.
	do func()
}

type fakeAdvancer struct {
	mu     sync.Mutex
	script []advanceStep
	calls  []gensvc.AdvanceRequest
}

func (f *fakeAdvancer) Advance(_ context.Context, req gensvc.AdvanceRequest) (*gensvc.AdvanceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if len(f.script) == 0 {
		return nil, errors.New("unexpected advance call")
	}
	step := f.script[0]
	f.script = f.script[1:]
	if step.do != nil {
		step.do()
	}
	return step.resp, step.err
}

func (f *fakeAdvancer) OpenStream(context.Context, gensvc.StreamRequest) (io.ReadCloser, error) {
	return nil, errors.New("not a stream service")
}

func (f *fakeAdvancer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeInvalidator struct {
	mu    sync.Mutex
	books []string
}

func (f *fakeInvalidator) InvalidateBook(_ context.Context, bookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books = append(f.books, bookID)
	return nil
}

func fastBatchConfig(svc gensvc.Service, inv ResultInvalidator) BatchConfig {
	return BatchConfig{
		Service:     svc,
		Invalidator: inv,
		RetryDelay:  time.Millisecond,
		BatchPause:  time.Millisecond,
	}
}

func TestBatchRunCompletes(t *testing.T) {
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "creating", BookID: "b1", TotalChapters: 10, Progress: 5}},
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 5, TotalChapters: 10, Progress: 50}},
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "completed", BookID: "b1", ChaptersCompleted: 10, TotalChapters: 10, Progress: 100}},
	}}
	inv := &fakeInvalidator{}

	o := NewBatchOrchestrator(fastBatchConfig(svc, inv))
	job, err := o.Run(context.Background(), RunRequest{ModelID: "m1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Phase != PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", job.Phase)
	}
	if job.Progress != 100 || job.ChaptersCompleted != 10 {
		t.Fatalf("unexpected final state: %+v", job)
	}
	if job.BookID != "b1" {
		t.Fatalf("expected book b1, got %q", job.BookID)
	}

	// Book ID from the first response must be carried on later calls.
	if got := svc.calls[1].BookID; got != "b1" {
		t.Fatalf("expected carried bookId on second call, got %q", got)
	}

	if len(inv.books) != 1 || inv.books[0] != "b1" {
		t.Fatalf("expected one invalidation for b1, got %v", inv.books)
	}
}

func TestBatchFinalizeRunsOnce(t *testing.T) {
	inv := &fakeInvalidator{}
	o := NewBatchOrchestrator(fastBatchConfig(nil, inv))
	o.model.Apply(Update{BookID: "b1"})

	o.finalize(context.Background())
	o.finalize(context.Background())

	if len(inv.books) != 1 || inv.books[0] != "b1" {
		t.Fatalf("expected exactly one invalidation for b1, got %v", inv.books)
	}
}

func TestBatchRetryBudgetResetsOnSuccess(t *testing.T) {
	transient := errors.New("connection reset")
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 2, Progress: 20}},
		{err: transient},
		{err: transient},
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "completed", BookID: "b1", ChaptersCompleted: 10, Progress: 100}},
	}}

	o := NewBatchOrchestrator(fastBatchConfig(svc, nil))
	job, err := o.Run(context.Background(), RunRequest{})
	if err != nil {
		t.Fatalf("two consecutive failures must not be fatal: %v", err)
	}
	if job.Phase != PhaseCompleted {
		t.Fatalf("expected completed phase, got %s", job.Phase)
	}
	if got := svc.callCount(); got != 4 {
		t.Fatalf("expected 4 advance calls, got %d", got)
	}
}

func TestBatchFatalAfterConsecutiveFailures(t *testing.T) {
	transient := errors.New("connection reset")
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 2, Progress: 20}},
		{err: transient},
		{err: transient},
		{err: transient},
	}}

	o := NewBatchOrchestrator(fastBatchConfig(svc, nil))
	job, err := o.Run(context.Background(), RunRequest{})

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if fatal.BookID != "b1" {
		t.Fatalf("fatal error must carry the book ID for resume, got %q", fatal.BookID)
	}
	if fatal.ChaptersCompleted != 2 {
		t.Fatalf("expected 2 completed chapters recorded, got %d", fatal.ChaptersCompleted)
	}
	if !fatal.Resumable() {
		t.Fatal("expected a resumable failure")
	}
	if !errors.Is(err, transient) {
		t.Fatal("fatal error must wrap the underlying cause")
	}
	if job.Phase != PhaseError {
		t.Fatalf("expected error phase, got %s", job.Phase)
	}
	if job.ChaptersCompleted != 2 {
		t.Fatalf("failure must preserve recorded progress, got %+v", job)
	}
}

func TestBatchCancellationPreservesProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 3, Progress: 30}},
		{
			resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 6, Progress: 60},
			do:   cancel,
		},
	}}
	inv := &fakeInvalidator{}

	o := NewBatchOrchestrator(fastBatchConfig(svc, inv))
	job, err := o.Run(ctx, RunRequest{})
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if !job.Cancelled {
		t.Fatal("expected cancelled job")
	}
	if job.ChaptersCompleted != 6 {
		t.Fatalf("expected progress from the last applied response, got %+v", job)
	}
	if len(inv.books) != 0 {
		t.Fatal("cancelled run must not invalidate results")
	}
}

func TestBatchResumeSendsBookID(t *testing.T) {
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "completed", BookID: "b7", ChaptersCompleted: 10, Progress: 100}},
	}}

	o := NewBatchOrchestrator(fastBatchConfig(svc, nil))
	job, err := o.Run(context.Background(), RunRequest{BookID: "b7"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.BookID != "b7" {
		t.Fatalf("expected book b7, got %q", job.BookID)
	}
	if got := svc.calls[0].BookID; got != "b7" {
		t.Fatalf("resume must send the book ID on the first call, got %q", got)
	}
}

func TestBatchProgressCallback(t *testing.T) {
	svc := &fakeAdvancer{script: []advanceStep{
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "generating", BookID: "b1", ChaptersCompleted: 5, Progress: 50}},
		{resp: &gensvc.AdvanceResponse{Success: true, Phase: "completed", BookID: "b1", ChaptersCompleted: 10, Progress: 100}},
	}}

	var snapshots []Job
	cfg := fastBatchConfig(svc, nil)
	cfg.OnProgress = func(j Job) { snapshots = append(snapshots, j) }

	o := NewBatchOrchestrator(cfg)
	if _, err := o.Run(context.Background(), RunRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(snapshots) == 0 {
		t.Fatal("expected progress callbacks")
	}
	last := snapshots[len(snapshots)-1]
	if last.Phase != PhaseCompleted || last.Progress != 100 {
		t.Fatalf("unexpected final callback snapshot: %+v", last)
	}
}
