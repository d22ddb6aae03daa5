package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/audio"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/svcctx"
)

// NarrateRequest is the request body for starting a narration run.
type NarrateRequest struct {
	UserID string `json:"user_id,omitempty"`
	// Chapters selects chapter mode; empty with Full=true selects one
	// concatenated full-book artifact.
	Chapters []int   `json:"chapters,omitempty"`
	Full     bool    `json:"full,omitempty"`
	Provider string  `json:"provider,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Model    string  `json:"model,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// NarrateResponse is the response for starting a narration run.
type NarrateResponse struct {
	RunID    string `json:"run_id"`
	BookID   string `json:"book_id"`
	Mode     string `json:"mode"`
	Chapters []int  `json:"chapters,omitempty"`
	Status   string `json:"status"`
}

// NarrateProgress is the snapshot stored while a narration run executes.
type NarrateProgress struct {
	Mode      string                `json:"mode"`
	Completed []int                 `json:"completed,omitempty"`
	Chapters  []*audio.ChapterState `json:"chapters,omitempty"`
	FullURL   string                `json:"full_url,omitempty"`
	Cancelled bool                  `json:"cancelled,omitempty"`
	Error     string                `json:"error,omitempty"`
	Hint      string                `json:"hint,omitempty"`
	Done      bool                  `json:"done"`
}

// withChapter returns a new snapshot with the chapter recorded. Completed
// is copied rather than appended in place because earlier snapshots may
// still be read concurrently by status queries.
func (p NarrateProgress) withChapter(n int) NarrateProgress {
	completed := append([]int(nil), p.Completed...)
	completed = append(completed, n)
	sort.Ints(completed)
	p.Completed = completed
	return p
}

// NarrateEndpoint handles POST /api/books/{book_id}/audio.
// Voice settings resolve request > stored preferences > config defaults.
type NarrateEndpoint struct{}

func (e *NarrateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{book_id}/audio", e.handler
}

func (e *NarrateEndpoint) RequiresInit() bool { return true }

func (e *NarrateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	var req NarrateRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !req.Full && len(req.Chapters) == 0 {
		writeError(w, http.StatusBadRequest, "chapters or full is required")
		return
	}
	for _, n := range req.Chapters {
		if n < 1 {
			writeError(w, http.StatusBadRequest, "chapter numbers must be positive")
			return
		}
	}

	services := svcctx.ServicesFrom(r.Context())
	if services == nil || services.AudioService == nil {
		writeError(w, http.StatusServiceUnavailable, "audio service not initialized")
		return
	}

	params := resolveVoiceParams(r.Context(), services, bookID, req)

	runCtx, run, err := services.JobManager.Begin(context.Background(), bookID, jobs.KindAudio)
	if err != nil {
		if errors.Is(err, jobs.ErrRunActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mode := "chapters"
	if req.Full {
		mode = "full"
	}

	go func() {
		defer services.JobManager.Finish(run)

		progress := NarrateProgress{Mode: mode}
		run.SetSnapshot(progress)

		orch := audio.NewOrchestrator(audio.OrchestratorConfig{
			Service:        services.AudioService,
			Logger:         services.Logger,
			UserID:         req.UserID,
			BookID:         bookID,
			RequestTimeout: services.ConfigManager.Get().Audio.RequestTimeout,
			OnChapter: func(cs audio.ChapterState) {
				progress = progress.withChapter(cs.ChapterNumber)
				run.SetSnapshot(progress)
			},
		})

		var result *audio.Result
		var runErr error
		if req.Full {
			result, runErr = orch.RunFull(runCtx, params)
		} else {
			result, runErr = orch.RunChapters(runCtx, req.Chapters, params)
		}

		if result != nil {
			progress.Completed = result.Completed
			progress.Chapters = result.Chapters
			progress.FullURL = result.FullBookURL
			progress.Cancelled = result.Cancelled
		}
		if runErr != nil {
			progress.Error = runErr.Error()
			var hinter interface{ Hint() string }
			if errors.As(runErr, &hinter) {
				progress.Hint = hinter.Hint()
			}
		}
		progress.Done = true
		run.SetSnapshot(progress)
	}()

	writeJSON(w, http.StatusAccepted, NarrateResponse{
		RunID:    run.ID,
		BookID:   bookID,
		Mode:     mode,
		Chapters: req.Chapters,
		Status:   "started",
	})
}

// resolveVoiceParams merges request overrides over stored preferences
// over config defaults.
func resolveVoiceParams(ctx context.Context, services *svcctx.Services, bookID string, req NarrateRequest) audio.VoiceParams {
	audioCfg := services.ConfigManager.Get().Audio
	params := audio.VoiceParams{
		Provider: audioCfg.Provider,
		Voice:    audioCfg.Voice,
		Model:    audioCfg.Model,
		Speed:    audioCfg.Speed,
	}

	if services.Prefs != nil {
		p, err := services.Prefs.Get(ctx, bookID)
		if err != nil {
			services.Logger.Warn("failed to load narration preferences", "book_id", bookID, "error", err)
		} else if p != nil {
			if p.Engine != "" {
				params.Provider = p.Engine
			}
			if p.Voice != "" {
				params.Voice = p.Voice
			}
			if p.Model != "" {
				params.Model = p.Model
			}
			if p.Speed != 0 {
				params.Speed = p.Speed
			}
		}
	}

	if req.Provider != "" {
		params.Provider = req.Provider
	}
	if req.Voice != "" {
		params.Voice = req.Voice
	}
	if req.Model != "" {
		params.Model = req.Model
	}
	if req.Speed != 0 {
		params.Speed = req.Speed
	}
	return params
}

func (e *NarrateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var chapters []int
	var full bool
	var voice string
	var provider string
	cmd := &cobra.Command{
		Use:   "narrate <book-id>",
		Short: "Start a narration run for a book",
		Long: `Generate narration audio for a book.

Chapter mode requests one chapter at a time in ascending order, so a
failure keeps every chapter finished before it. Full mode produces one
concatenated audiobook artifact.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp NarrateResponse
			err := client.Post(cmd.Context(), "/api/books/"+args[0]+"/audio", NarrateRequest{
				Chapters: chapters,
				Full:     full,
				Voice:    voice,
				Provider: provider,
			}, &resp)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntSliceVar(&chapters, "chapters", nil, "Chapter numbers to narrate")
	cmd.Flags().BoolVar(&full, "full", false, "Generate one full-book artifact")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice override")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider override")
	return cmd
}

// VoicesResponse is the response listing available narration voices.
type VoicesResponse struct {
	Voices []audio.Voice `json:"voices"`
}

// VoicesEndpoint handles GET /api/voices.
type VoicesEndpoint struct{}

func (e *VoicesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/voices", e.handler
}

func (e *VoicesEndpoint) RequiresInit() bool { return true }

func (e *VoicesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc := svcctx.AudioServiceFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "audio service not initialized")
		return
	}

	voices, err := svc.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, VoicesResponse{Voices: voices})
}

func (e *VoicesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List available narration voices",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp VoicesResponse
			if err := client.Get(cmd.Context(), "/api/voices", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
