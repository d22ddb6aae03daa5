package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/fablepress/fable/internal/gensvc"
	"github.com/fablepress/fable/internal/metrics"
)

const (
	// DefaultRetryAttempts bounds consecutive advance failures before the
	// run escalates to a fatal, resumable error.
	DefaultRetryAttempts = 3

	// DefaultRetryDelay is the fixed pause between retry attempts. Fixed
	// rather than exponential; see the config docs for the tunable.
	DefaultRetryDelay = 2 * time.Second

	// DefaultBatchPause is the pause between successful advance calls.
	DefaultBatchPause = 500 * time.Millisecond
)

// ResultInvalidator drops any client-visible cached results for a book.
// Invoked exactly once per run, at completion.
type ResultInvalidator interface {
	InvalidateBook(ctx context.Context, bookID string) error
}

// RunRequest describes one generation run. BookID is set only when
// resuming a previously failed or cancelled run; the server is the
// source of truth for how many chapters already exist.
type RunRequest struct {
	Outline         json.RawMessage
	Config          json.RawMessage
	ModelID         string
	GenerationSpeed string
	UseParallel     bool
	BookID          string
}

// BatchConfig configures a BatchOrchestrator.
type BatchConfig struct {
	Service     gensvc.Service
	Invalidator ResultInvalidator
	Logger      *slog.Logger
	OnProgress  func(Job)

	RetryAttempts uint
	RetryDelay    time.Duration
	BatchPause    time.Duration
}

// BatchOrchestrator drives a generation run through repeated advance
// calls. One outstanding request at a time; cancellation is observed at
// the top of each loop iteration and during the inter-batch pause.
type BatchOrchestrator struct {
	svc         gensvc.Service
	invalidator ResultInvalidator
	logger      *slog.Logger
	model       *Model

	attempts   uint
	retryDelay time.Duration
	batchPause time.Duration

	finalized bool
}

// NewBatchOrchestrator creates a batch-mode orchestrator.
func NewBatchOrchestrator(cfg BatchConfig) *BatchOrchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.BatchPause == 0 {
		cfg.BatchPause = DefaultBatchPause
	}

	return &BatchOrchestrator{
		svc:         cfg.Service,
		invalidator: cfg.Invalidator,
		logger:      cfg.Logger,
		model:       NewModel(cfg.OnProgress),
		attempts:    cfg.RetryAttempts,
		retryDelay:  cfg.RetryDelay,
		batchPause:  cfg.BatchPause,
	}
}

// Run executes the generation loop until completion, a fatal error, or
// cancellation. Cancellation is not an error: the returned Job is tagged
// Cancelled and all recorded progress is preserved. A returned
// *FatalError carries the last known book ID so the caller can resume.
func (o *BatchOrchestrator) Run(ctx context.Context, req RunRequest) (Job, error) {
	advReq := gensvc.AdvanceRequest{
		Outline:         req.Outline,
		Config:          req.Config,
		ModelID:         req.ModelID,
		BookID:          req.BookID,
		GenerationSpeed: req.GenerationSpeed,
		UseParallel:     req.UseParallel,
	}

	if req.BookID != "" {
		o.model.Apply(Update{
			BookID:  req.BookID,
			Message: strPtr("Resuming generation..."),
		})
	}
	o.model.Apply(Update{Phase: phasePtr(PhaseCreating)})

	for {
		if ctx.Err() != nil {
			return o.cancelled()
		}

		resp, err := o.advanceWithRetry(ctx, advReq)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled()
			}
			snap := o.model.Snapshot()
			o.model.Apply(Update{Phase: phasePtr(PhaseError), Message: strPtr(err.Error())})
			metrics.GenerationRuns.WithLabelValues("batch", "failed").Inc()
			o.logger.Error("generation run failed",
				"book_id", snap.BookID,
				"chapters_completed", snap.ChaptersCompleted,
				"error", err)
			return o.model.Snapshot(), &FatalError{
				BookID:            snap.BookID,
				ChaptersCompleted: snap.ChaptersCompleted,
				Message:           fmt.Sprintf("advance failed after %d attempts", o.attempts),
				Err:               err,
			}
		}

		o.applyResponse(resp)
		if resp.BookID != "" {
			advReq.BookID = resp.BookID
		}

		if Phase(resp.Phase) == PhaseCompleted {
			o.finalize(ctx)
			metrics.GenerationRuns.WithLabelValues("batch", "completed").Inc()
			o.logger.Info("generation run completed",
				"book_id", advReq.BookID,
				"chapters", resp.ChaptersCompleted)
			return o.model.Snapshot(), nil
		}

		select {
		case <-ctx.Done():
			return o.cancelled()
		case <-time.After(o.batchPause):
		}
	}
}

// advanceWithRetry performs one advance call with a bounded, fixed-delay
// retry budget. Any success resets the consecutive-failure count because
// each advance gets a fresh budget.
func (o *BatchOrchestrator) advanceWithRetry(ctx context.Context, req gensvc.AdvanceRequest) (*gensvc.AdvanceResponse, error) {
	var resp *gensvc.AdvanceResponse

	err := retry.Do(
		func() error {
			r, err := o.svc.Advance(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			metrics.AdvanceRetries.Inc()
			o.model.Apply(Update{
				Message: strPtr(fmt.Sprintf("Connection hiccup, retrying (attempt %d of %d)...", n+2, o.attempts)),
			})
			o.logger.Warn("advance call failed, retrying",
				"attempt", n+1,
				"max_attempts", o.attempts,
				"book_id", req.BookID,
				"error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (o *BatchOrchestrator) applyResponse(resp *gensvc.AdvanceResponse) {
	u := Update{
		BookID:            resp.BookID,
		ChaptersCompleted: intPtr(resp.ChaptersCompleted),
		Progress:          intPtr(resp.Progress),
	}
	if p := parsePhase(resp.Phase); p != "" {
		u.Phase = phasePtr(p)
	}
	if resp.TotalChapters > 0 {
		u.TotalChapters = intPtr(resp.TotalChapters)
	}
	if resp.Message != "" {
		u.Message = strPtr(resp.Message)
	}
	o.model.Apply(u)
}

// finalize runs completion side effects exactly once per run.
func (o *BatchOrchestrator) finalize(ctx context.Context) {
	if o.finalized {
		return
	}
	o.finalized = true

	snap := o.model.Snapshot()
	if o.invalidator != nil && snap.BookID != "" {
		if err := o.invalidator.InvalidateBook(ctx, snap.BookID); err != nil {
			o.logger.Warn("failed to invalidate book result cache",
				"book_id", snap.BookID,
				"error", err)
		}
	}
}

func (o *BatchOrchestrator) cancelled() (Job, error) {
	o.model.MarkCancelled()
	metrics.GenerationRuns.WithLabelValues("batch", "cancelled").Inc()
	snap := o.model.Snapshot()
	o.logger.Info("generation run cancelled",
		"book_id", snap.BookID,
		"chapters_completed", snap.ChaptersCompleted)
	return snap, nil
}

// parsePhase maps a wire phase string to a Phase. Unknown strings map to
// the empty Phase so the model keeps its current phase.
func parsePhase(s string) Phase {
	switch Phase(s) {
	case PhaseIdle, PhaseCreating, PhaseGenerating, PhaseCover, PhaseCompleted, PhaseError:
		return Phase(s)
	}
	return ""
}
