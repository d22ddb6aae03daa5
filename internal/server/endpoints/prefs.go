package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/prefs"
	"github.com/fablepress/fable/internal/svcctx"
)

// GetPrefsEndpoint handles GET /api/books/{book_id}/prefs.
type GetPrefsEndpoint struct{}

func (e *GetPrefsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{book_id}/prefs", e.handler
}

func (e *GetPrefsEndpoint) RequiresInit() bool { return true }

func (e *GetPrefsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	store := svcctx.PrefsFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "preference store not initialized")
		return
	}

	p, err := store.Get(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		p = &prefs.Preferences{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetPrefsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "prefs-get <book-id>",
		Short: "Get narration preferences for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp prefs.Preferences
			if err := client.Get(cmd.Context(), "/api/books/"+args[0]+"/prefs", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SetPrefsEndpoint handles PUT /api/books/{book_id}/prefs.
// The stored blob is replaced wholesale; merge semantics live in the
// narration endpoint, not here.
type SetPrefsEndpoint struct{}

func (e *SetPrefsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/books/{book_id}/prefs", e.handler
}

func (e *SetPrefsEndpoint) RequiresInit() bool { return true }

func (e *SetPrefsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	var p prefs.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := svcctx.PrefsFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "preference store not initialized")
		return
	}

	if err := store.Set(r.Context(), bookID, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *SetPrefsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var engine, voice, model string
	var speed float64
	cmd := &cobra.Command{
		Use:   "prefs-set <book-id>",
		Short: "Set narration preferences for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp prefs.Preferences
			err := client.Put(cmd.Context(), "/api/books/"+args[0]+"/prefs", prefs.Preferences{
				Engine: engine,
				Voice:  voice,
				Model:  model,
				Speed:  speed,
			}, &resp)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "Narration engine")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice name")
	cmd.Flags().StringVar(&model, "model", "", "Narration model")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Playback speed")
	return cmd
}
