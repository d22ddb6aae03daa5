package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/generation"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/outline"
	"github.com/fablepress/fable/internal/svcctx"
)

// resultTTL is how long a completed run result stays cached.
const resultTTL = 24 * time.Hour

// StartGenerationRequest is the request body for starting a generation run.
type StartGenerationRequest struct {
	Outline json.RawMessage `json:"outline"`
	Config  json.RawMessage `json:"config,omitempty"`
	ModelID string          `json:"model_id,omitempty"`
	// Mode selects the transport: "batch" (default) or "stream".
	Mode string `json:"mode,omitempty"`
	// BookID resumes a previously failed or cancelled run.
	BookID   string `json:"book_id,omitempty"`
	Speed    string `json:"speed,omitempty"`
	Parallel *bool  `json:"parallel,omitempty"`
}

// StartGenerationResponse is the response for starting a generation run.
type StartGenerationResponse struct {
	RunID  string `json:"run_id"`
	BookID string `json:"book_id,omitempty"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
}

// StartGenerationEndpoint handles POST /api/generate.
// The run executes in the background; poll /api/runs/{run_id} for progress.
type StartGenerationEndpoint struct{}

func (e *StartGenerationEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/generate", e.handler
}

func (e *StartGenerationEndpoint) RequiresInit() bool { return true }

func (e *StartGenerationEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req StartGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Outline) == 0 {
		writeError(w, http.StatusBadRequest, "outline is required")
		return
	}
	if _, err := outline.Parse(req.Outline); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid outline: %v", err))
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = "batch"
	}
	if mode != "batch" && mode != "stream" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode: %s", mode))
		return
	}
	if mode == "stream" && req.BookID != "" {
		// Resume needs the advance endpoint; the stream has no way to
		// pass an existing book.
		writeError(w, http.StatusBadRequest, "resume is only supported in batch mode")
		return
	}

	services := svcctx.ServicesFrom(r.Context())
	if services == nil || services.GenService == nil {
		writeError(w, http.StatusServiceUnavailable, "generation service not initialized")
		return
	}

	genCfg := services.ConfigManager.Get().Generation
	modelID := req.ModelID
	if modelID == "" {
		modelID = genCfg.ModelID
	}
	speed := req.Speed
	if speed == "" {
		speed = genCfg.Speed
	}
	parallel := genCfg.Parallel
	if req.Parallel != nil {
		parallel = *req.Parallel
	}

	// The run outlives the request; its lifetime is owned by the manager.
	runCtx, run, err := services.JobManager.Begin(context.Background(), req.BookID, jobs.KindGeneration)
	if err != nil {
		if errors.Is(err, jobs.ErrRunActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runReq := generation.RunRequest{
		Outline:         req.Outline,
		Config:          req.Config,
		ModelID:         modelID,
		GenerationSpeed: speed,
		UseParallel:     parallel,
		BookID:          req.BookID,
	}

	go func() {
		defer services.JobManager.Finish(run)

		onProgress := func(j generation.Job) {
			run.SetSnapshot(j)
			// Register the server-assigned book so a second start or
			// resume for it is rejected while this run is active, and
			// book-keyed cancellation can find the run.
			if j.BookID != "" {
				if aErr := services.JobManager.AdoptBook(run, j.BookID); aErr != nil {
					services.Logger.Warn("another run already holds the assigned book",
						"run_id", run.ID,
						"book_id", j.BookID,
						"error", aErr)
				}
			}
		}

		var job generation.Job
		var runErr error
		switch mode {
		case "stream":
			o := generation.NewStreamOrchestrator(generation.StreamConfig{
				Service:     services.GenService,
				Invalidator: services.ResultCache,
				Logger:      services.Logger,
				OnProgress:  onProgress,
			})
			job, runErr = o.Run(runCtx, runReq)
		default:
			o := generation.NewBatchOrchestrator(generation.BatchConfig{
				Service:       services.GenService,
				Invalidator:   services.ResultCache,
				Logger:        services.Logger,
				OnProgress:    onProgress,
				RetryAttempts: genCfg.RetryAttempts,
				RetryDelay:    genCfg.RetryDelay,
				BatchPause:    genCfg.BatchPause,
			})
			job, runErr = o.Run(runCtx, runReq)
		}
		run.SetSnapshot(job)

		if runErr != nil {
			var fatal *generation.FatalError
			if errors.As(runErr, &fatal) && fatal.Resumable() {
				services.Logger.Error("generation run failed, resumable",
					"run_id", run.ID,
					"book_id", fatal.BookID,
					"chapters_completed", fatal.ChaptersCompleted)
			}
			return
		}

		if job.Phase == generation.PhaseCompleted && services.ResultCache != nil && job.BookID != "" {
			if data, mErr := json.Marshal(job); mErr == nil {
				if cErr := services.ResultCache.Set(context.Background(), job.BookID, data, resultTTL); cErr != nil {
					services.Logger.Warn("failed to cache run result", "book_id", job.BookID, "error", cErr)
				}
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, StartGenerationResponse{
		RunID:  run.ID,
		BookID: req.BookID,
		Mode:   mode,
		Status: "started",
	})
}

func (e *StartGenerationEndpoint) Command(getServerURL func() string) *cobra.Command {
	var mode string
	var modelID string
	var bookID string
	cmd := &cobra.Command{
		Use:   "generate <outline.json>",
		Short: "Start a book generation run",
		Long: `Start a book generation run from an outline file.

The run executes on the server in the background. Use
'fable api run-status <run-id>' to poll progress, and
'fable api run-cancel <run-id>' to stop a run while keeping
completed chapters.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read outline: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp StartGenerationResponse
			err = client.Post(cmd.Context(), "/api/generate", StartGenerationRequest{
				Outline: data,
				ModelID: modelID,
				Mode:    mode,
				BookID:  bookID,
			}, &resp)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "batch", "Run mode: batch or stream")
	cmd.Flags().StringVar(&modelID, "model", "", "Model ID override")
	cmd.Flags().StringVar(&bookID, "book-id", "", "Resume a failed run for this book (batch mode)")
	return cmd
}

// RunStatusResponse is the response for a run status query.
type RunStatusResponse struct {
	RunID     string `json:"run_id"`
	BookID    string `json:"book_id,omitempty"`
	Kind      string `json:"kind"`
	StartedAt string `json:"started_at"`
	Progress  any    `json:"progress,omitempty"`
}

// RunStatusEndpoint handles GET /api/runs/{run_id}.
type RunStatusEndpoint struct{}

func (e *RunStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/runs/{run_id}", e.handler
}

func (e *RunStatusEndpoint) RequiresInit() bool { return true }

func (e *RunStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	manager := svcctx.JobManagerFrom(r.Context())
	run, ok := manager.Find(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, RunStatusResponse{
		RunID:     run.ID,
		BookID:    run.BookID(),
		Kind:      string(run.Kind),
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Progress:  run.Snapshot(),
	})
}

func (e *RunStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-status <run-id>",
		Short: "Get progress for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunStatusResponse
			if err := client.Get(cmd.Context(), "/api/runs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelRunResponse is the response for a run cancellation request.
type CancelRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// CancelRunEndpoint handles POST /api/runs/{run_id}/cancel.
// Cancellation is cooperative: the run stops at its next suspension
// point and all recorded progress is preserved.
type CancelRunEndpoint struct{}

func (e *CancelRunEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/runs/{run_id}/cancel", e.handler
}

func (e *CancelRunEndpoint) RequiresInit() bool { return true }

func (e *CancelRunEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id is required")
		return
	}

	manager := svcctx.JobManagerFrom(r.Context())
	if !manager.CancelRun(runID) {
		writeError(w, http.StatusNotFound, "no active run with that id")
		return
	}

	writeJSON(w, http.StatusAccepted, CancelRunResponse{RunID: runID, Status: "cancelling"})
}

func (e *CancelRunEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run-cancel <run-id>",
		Short: "Cancel an active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelRunResponse
			if err := client.Post(cmd.Context(), "/api/runs/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// BookResultEndpoint handles GET /api/books/{book_id}/result, serving the
// cached final state of the book's last completed generation run.
type BookResultEndpoint struct{}

func (e *BookResultEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{book_id}/result", e.handler
}

func (e *BookResultEndpoint) RequiresInit() bool { return true }

func (e *BookResultEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	resultCache := svcctx.ResultCacheFrom(r.Context())
	if resultCache == nil {
		writeError(w, http.StatusServiceUnavailable, "result cache not initialized")
		return
	}

	data, ok, err := resultCache.Get(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no cached result for book")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (e *BookResultEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "result <book-id>",
		Short: "Get the cached result of a book's last completed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp generation.Job
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/result", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
