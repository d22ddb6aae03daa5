package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fablepress/fable/internal/metrics"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Service Service
	Logger  *slog.Logger

	UserID string
	BookID string

	// Chapters seeds the per-chapter state, typically loaded from the
	// book's table of contents. Chapters not present here are created on
	// first successful generation.
	Chapters []*ChapterState

	// RequestTimeout bounds each narration request. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// OnChapter, if non-nil, receives each chapter state as it is
	// updated during a run.
	OnChapter func(ChapterState)
}

// Orchestrator runs narration generation. Chapter mode is deliberately
// single-lane: one request at a time, ascending chapter order, so a
// failure on chapter k never invalidates chapters before k and chapters
// after k are simply never attempted.
type Orchestrator struct {
	svc     Service
	logger  *slog.Logger
	userID  string
	bookID  string
	timeout time.Duration

	states    map[int]*ChapterState
	onChapter func(ChapterState)
}

// NewOrchestrator creates a narration orchestrator for one book.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	states := make(map[int]*ChapterState, len(cfg.Chapters))
	for _, ch := range cfg.Chapters {
		states[ch.ChapterNumber] = ch
	}

	return &Orchestrator{
		svc:       cfg.Service,
		logger:    cfg.Logger,
		userID:    cfg.UserID,
		bookID:    cfg.BookID,
		timeout:   cfg.RequestTimeout,
		states:    states,
		onChapter: cfg.OnChapter,
	}
}

// RunFull issues exactly one request producing one concatenated
// full-book artifact.
func (o *Orchestrator) RunFull(ctx context.Context, params VoiceParams) (*Result, error) {
	resp, err := o.generate(ctx, params, nil, 0)
	if err != nil {
		if ctx.Err() != nil {
			metrics.AudioRequests.WithLabelValues("full", "cancelled").Inc()
			return &Result{Cancelled: true}, nil
		}
		metrics.AudioRequests.WithLabelValues("full", "failed").Inc()
		return nil, err
	}

	if resp.Type != "full" || resp.AudioURL == "" {
		metrics.AudioRequests.WithLabelValues("full", "failed").Inc()
		return nil, &ServiceError{Message: fmt.Sprintf("unexpected response type %q for full-book narration", resp.Type)}
	}

	metrics.AudioRequests.WithLabelValues("full", "completed").Inc()
	o.logger.Info("full-book narration complete", "book_id", o.bookID)
	return &Result{FullBookURL: resp.AudioURL}, nil
}

// RunChapters generates narration for the given chapters, one request
// per chapter, strictly sequentially in ascending chapter-number order
// regardless of selection order. Cancellation aborts only the in-flight
// request; completed chapters remain recorded and are reported as a
// partial success. A failure on one chapter stops the run; its typed
// error is returned alongside the partial result.
func (o *Orchestrator) RunChapters(ctx context.Context, chapters []int, params VoiceParams) (*Result, error) {
	ordered := append([]int(nil), chapters...)
	sort.Ints(ordered)

	result := &Result{}

	for _, num := range ordered {
		// Suspension point: cancellation is observed here and through
		// the per-request context, nowhere else.
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		resp, err := o.generate(ctx, params, []int{num}, num)
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				break
			}
			metrics.AudioRequests.WithLabelValues("chapters", "failed").Inc()
			o.logger.Error("chapter narration failed",
				"book_id", o.bookID,
				"chapter", num,
				"error", err)
			result.Chapters = o.chapterList()
			return result, err
		}

		applied := false
		for _, ch := range resp.Chapters {
			if ch.ChapterNumber != num {
				o.logger.Warn("narration response for unexpected chapter",
					"book_id", o.bookID,
					"requested", num,
					"got", ch.ChapterNumber)
				continue
			}
			o.recordChapter(ch)
			result.Completed = append(result.Completed, num)
			applied = true
		}
		if !applied {
			metrics.AudioRequests.WithLabelValues("chapters", "failed").Inc()
			result.Chapters = o.chapterList()
			return result, &ServiceError{
				ChapterNumber: num,
				Message:       fmt.Sprintf("no artifact returned for chapter %d", num),
			}
		}

		o.logger.Debug("chapter narration complete",
			"book_id", o.bookID,
			"chapter", num)
	}

	outcome := "completed"
	if result.Cancelled {
		outcome = "cancelled"
		o.logger.Info("chapter narration cancelled",
			"book_id", o.bookID,
			"completed", len(result.Completed))
	}
	metrics.AudioRequests.WithLabelValues("chapters", outcome).Inc()

	result.Chapters = o.chapterList()
	return result, nil
}

// Chapters returns the current per-chapter state in ascending order.
func (o *Orchestrator) Chapters() []*ChapterState {
	return o.chapterList()
}

// generate performs one narration request under the per-request timeout.
// Errors are classified so the caller can distinguish timeout, network,
// and service-reported failures.
func (o *Orchestrator) generate(ctx context.Context, params VoiceParams, chapterNumbers []int, chapterNum int) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.svc.Generate(reqCtx, Request{
		UserID:         o.userID,
		BookID:         o.bookID,
		Provider:       params.Provider,
		Voice:          params.Voice,
		Speed:          params.Speed,
		Model:          params.Model,
		ChapterNumbers: chapterNumbers,
	})
	if err != nil {
		return nil, o.tagChapter(err, reqCtx, chapterNum)
	}
	return resp, nil
}

// tagChapter stamps the failing chapter onto a classified error, and
// converts a deadline expiry seen as a bare context error into a
// TimeoutError.
func (o *Orchestrator) tagChapter(err error, reqCtx context.Context, chapterNum int) error {
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		var timeoutErr *TimeoutError
		if !errors.As(err, &timeoutErr) {
			err = &TimeoutError{Err: err}
		}
	}

	switch e := err.(type) {
	case *TimeoutError:
		e.ChapterNumber = chapterNum
	case *NetworkError:
		e.ChapterNumber = chapterNum
	case *ServiceError:
		e.ChapterNumber = chapterNum
	}
	return err
}

// recordChapter updates the matching chapter state in place, overwriting
// any prior artifact. This is also how "regenerate this chapter" works;
// there is no special-case path.
func (o *Orchestrator) recordChapter(ch ChapterAudio) {
	state, ok := o.states[ch.ChapterNumber]
	if !ok {
		state = &ChapterState{ChapterNumber: ch.ChapterNumber}
		o.states[ch.ChapterNumber] = state
	}
	state.AudioURL = ch.AudioURL
	state.DurationSeconds = ch.Duration

	if ch.Duration > 0 {
		metrics.AudioChapterDuration.Observe(ch.Duration)
	}
	if o.onChapter != nil {
		o.onChapter(*state)
	}
}

func (o *Orchestrator) chapterList() []*ChapterState {
	nums := make([]int, 0, len(o.states))
	for n := range o.states {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	out := make([]*ChapterState, 0, len(nums))
	for _, n := range nums {
		out = append(out, o.states[n])
	}
	return out
}
