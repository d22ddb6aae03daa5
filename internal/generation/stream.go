package generation

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/fablepress/fable/internal/gensvc"
	"github.com/fablepress/fable/internal/metrics"
)

// streamReadSize is the read buffer size for stream chunks. The server
// frames records by newline, not by chunk, so any size works.
const streamReadSize = 4096

// StreamConfig configures a StreamOrchestrator.
type StreamConfig struct {
	Service     gensvc.Service
	Invalidator ResultInvalidator
	Logger      *slog.Logger
	OnProgress  func(Job)
}

// StreamOrchestrator drives a generation run by consuming one long-lived
// event-record stream. Same contract as BatchOrchestrator, different
// transport. Records are applied strictly in arrival order; cancellation
// closes the stream after the current buffered chunk is processed.
type StreamOrchestrator struct {
	svc         gensvc.Service
	invalidator ResultInvalidator
	logger      *slog.Logger
	model       *Model

	// carry holds the trailing partial line between chunks. Bytes arrive
	// in arbitrary-sized pieces; a data: payload split across chunks must
	// be reassembled before parsing.
	carry []byte

	finalized bool
}

// NewStreamOrchestrator creates a stream-mode orchestrator.
func NewStreamOrchestrator(cfg StreamConfig) *StreamOrchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StreamOrchestrator{
		svc:         cfg.Service,
		invalidator: cfg.Invalidator,
		logger:      cfg.Logger,
		model:       NewModel(cfg.OnProgress),
	}
}

// Run opens the stream and consumes it until a terminal completion
// record, an explicit error record, stream end, or cancellation.
func (o *StreamOrchestrator) Run(ctx context.Context, req RunRequest) (Job, error) {
	o.model.Apply(Update{
		Phase:   phasePtr(PhaseCreating),
		Message: strPtr("Starting generation..."),
	})

	stream, err := o.svc.OpenStream(ctx, gensvc.StreamRequest{
		Outline:         req.Outline,
		Config:          req.Config,
		ModelID:         req.ModelID,
		GenerationSpeed: req.GenerationSpeed,
		UseParallel:     req.UseParallel,
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled()
		}
		o.model.Apply(Update{Phase: phasePtr(PhaseError), Message: strPtr(err.Error())})
		metrics.GenerationRuns.WithLabelValues("stream", "failed").Inc()
		return o.model.Snapshot(), &FatalError{Message: "failed to open generation stream", Err: err}
	}
	defer stream.Close()

	buf := make([]byte, streamReadSize)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			done, fatal := o.consumeChunk(ctx, buf[:n])
			if fatal != nil {
				metrics.GenerationRuns.WithLabelValues("stream", "failed").Inc()
				return o.model.Snapshot(), fatal
			}
			if done {
				metrics.GenerationRuns.WithLabelValues("stream", "completed").Inc()
				snap := o.model.Snapshot()
				o.logger.Info("generation run completed",
					"book_id", snap.BookID,
					"chapters", snap.ChaptersCompleted)
				return snap, nil
			}
		}

		// Suspension point: the chunk already read has been processed.
		if ctx.Err() != nil {
			return o.cancelled()
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return o.streamEnded()
			}
			if ctx.Err() != nil {
				return o.cancelled()
			}
			snap := o.model.Snapshot()
			o.model.Apply(Update{Phase: phasePtr(PhaseError), Message: strPtr(readErr.Error())})
			metrics.GenerationRuns.WithLabelValues("stream", "failed").Inc()
			return o.model.Snapshot(), &FatalError{
				BookID:            snap.BookID,
				ChaptersCompleted: snap.ChaptersCompleted,
				Message:           "stream read failed",
				Err:               readErr,
			}
		}
	}
}

// consumeChunk splits the chunk into complete lines, carrying the
// trailing partial line into the next chunk, and applies each record.
func (o *StreamOrchestrator) consumeChunk(ctx context.Context, chunk []byte) (done bool, fatal error) {
	o.carry = append(o.carry, chunk...)

	for {
		idx := bytes.IndexByte(o.carry, '\n')
		if idx < 0 {
			return false, nil
		}
		line := o.carry[:idx]
		o.carry = o.carry[idx+1:]

		done, fatal = o.handleLine(ctx, line)
		if done || fatal != nil {
			return done, fatal
		}
	}
}

// handleLine processes one complete line. event: lines name the record
// type and are informational only; data: lines carry the JSON payload
// that drives the state machine.
func (o *StreamOrchestrator) handleLine(ctx context.Context, line []byte) (done bool, fatal error) {
	text := strings.TrimSpace(string(line))
	if text == "" || strings.HasPrefix(text, "event:") {
		return false, nil
	}
	if !strings.HasPrefix(text, "data:") {
		return false, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
	ev, ok := decodeEvent([]byte(payload))
	if !ok {
		// Not-yet-complete or unrecognized record. Normal, not a fault.
		metrics.StreamRecordsDropped.Inc()
		return false, nil
	}

	metrics.StreamEventsApplied.WithLabelValues(ev.eventKind()).Inc()
	return o.apply(ctx, ev)
}

// apply folds one event into the progress model. Later records win on
// overlapping fields; no reordering or deduplication is performed.
func (o *StreamOrchestrator) apply(ctx context.Context, ev Event) (done bool, fatal error) {
	switch e := ev.(type) {
	case StartedEvent:
		u := Update{
			Phase:    phasePtr(PhaseGenerating),
			Parallel: boolPtr(e.Parallel),
		}
		if e.Model != "" {
			u.Model = strPtr(e.Model)
		}
		if e.Message != "" {
			u.Message = strPtr(e.Message)
		}
		o.model.Apply(u)

	case BookCreatedEvent:
		o.model.Apply(Update{BookID: e.BookID})

	case BatchEvent:
		u := Update{
			BookID:            e.BookID,
			CurrentBatch:      e.Batch,
			ChaptersCompleted: intPtr(e.ChaptersCompleted),
			Progress:          intPtr(e.Progress),
			TotalWords:        intPtr(e.TotalWords),
		}
		if e.TotalChapters > 0 {
			u.TotalChapters = intPtr(e.TotalChapters)
		}
		if e.Message != "" {
			u.Message = strPtr(e.Message)
		}
		o.model.Apply(u)

	case ChapterStatusEvent:
		if e.Message != "" {
			o.model.Apply(Update{Message: strPtr(e.Message)})
		}

	case CoverEvent:
		u := Update{Phase: phasePtr(PhaseCover)}
		if e.Message != "" {
			u.Message = strPtr(e.Message)
		} else {
			u.Message = strPtr("Generating " + e.Type + " cover...")
		}
		o.model.Apply(u)

	case CompletedEvent:
		u := Update{
			Phase:             phasePtr(PhaseCompleted),
			ChaptersCompleted: intPtr(e.ChaptersCompleted),
			Progress:          intPtr(100),
			TotalWords:        intPtr(e.TotalWords),
		}
		if e.TotalChapters > 0 {
			u.TotalChapters = intPtr(e.TotalChapters)
		}
		if e.Message != "" {
			u.Message = strPtr(e.Message)
		}
		o.model.Apply(u)
		o.finalize(ctx)
		return true, nil

	case ErrorEvent:
		snap := o.model.Snapshot()
		o.model.Apply(Update{Phase: phasePtr(PhaseError), Message: strPtr(e.Message)})
		o.logger.Error("generation stream reported error",
			"book_id", snap.BookID,
			"error", e.Message,
			"details", e.Details)
		return false, &FatalError{
			BookID:            snap.BookID,
			ChaptersCompleted: snap.ChaptersCompleted,
			Message:           e.Message,
		}
	}

	return false, nil
}

// finalize runs completion side effects exactly once, even if the server
// emits two completion-shaped records.
func (o *StreamOrchestrator) finalize(ctx context.Context) {
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

func (o *StreamOrchestrator) cancelled() (Job, error) {
	o.model.MarkCancelled()
	metrics.GenerationRuns.WithLabelValues("stream", "cancelled").Inc()
	snap := o.model.Snapshot()
	o.logger.Info("generation run cancelled",
		"book_id", snap.BookID,
		"chapters_completed", snap.ChaptersCompleted)
	return snap, nil
}

// streamEnded handles the server closing the stream without a terminal
// completion record. Progress so far is preserved and the error carries
// the book ID so the caller can resume in batch mode.
func (o *StreamOrchestrator) streamEnded() (Job, error) {
	snap := o.model.Snapshot()
	if snap.Phase == PhaseCompleted {
		return snap, nil
	}
	o.model.Apply(Update{Phase: phasePtr(PhaseError), Message: strPtr("generation stream ended unexpectedly")})
	metrics.GenerationRuns.WithLabelValues("stream", "failed").Inc()
	return o.model.Snapshot(), &FatalError{
		BookID:            snap.BookID,
		ChaptersCompleted: snap.ChaptersCompleted,
		Message:           "stream ended before completion",
		Err:               io.ErrUnexpectedEOF,
	}
}
