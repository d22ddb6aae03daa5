package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fablepress/fable/internal/api"
	"github.com/fablepress/fable/internal/archive"
	"github.com/fablepress/fable/internal/svcctx"
)

// BundleItem is one artifact to include in a bundle.
type BundleItem struct {
	URL    string `json:"url"`
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// BundleRequest is the request body for building an audio bundle.
type BundleRequest struct {
	BundleName string       `json:"bundle_name,omitempty"`
	Items      []BundleItem `json:"items"`
}

// BundleResponse is the response for a bundle build.
type BundleResponse struct {
	BookID   string       `json:"book_id"`
	Files    []string     `json:"files"`
	Omitted  []BundleItem `json:"omitted,omitempty"`
	Degraded bool         `json:"degraded,omitempty"`
}

// BundleEndpoint handles POST /api/books/{book_id}/bundle.
// Artifacts that fail to download are omitted rather than failing the
// bundle; only if every item fails does the request fail. Files land in
// the home bundles directory and are served by the download endpoint.
type BundleEndpoint struct{}

func (e *BundleEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{book_id}/bundle", e.handler
}

func (e *BundleEndpoint) RequiresInit() bool { return true }

func (e *BundleEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}

	var req BundleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not configured")
		return
	}
	if err := homeDir.EnsureBookBundleDir(bookID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	bundleName := req.BundleName
	if bundleName == "" {
		bundleName = fmt.Sprintf("%s_audiobook.zip", bookID)
	}

	items := make([]archive.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, archive.Item{URL: it.URL, Number: it.Number, Title: it.Title})
	}

	builder := archive.NewBuilder(archive.NewHTTPFetcher(0), svcctx.LoggerFrom(r.Context()))
	delivery := &dirDelivery{dir: homeDir.BookBundleDir(bookID)}

	report, err := builder.Build(r.Context(), bundleName, items, delivery)
	if err != nil {
		if errors.Is(err, archive.ErrAllItemsFailed) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := BundleResponse{
		BookID:   bookID,
		Files:    delivery.written,
		Degraded: report.Degraded,
	}
	for _, it := range report.Omitted {
		resp.Omitted = append(resp.Omitted, BundleItem{URL: it.URL, Number: it.Number, Title: it.Title})
	}
	writeJSON(w, http.StatusOK, resp)
}

// dirDelivery writes produced files into a directory.
type dirDelivery struct {
	dir     string
	written []string
}

func (d *dirDelivery) SendFile(_ context.Context, name string, data []byte) error {
	path := filepath.Join(d.dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	d.written = append(d.written, path)
	return nil
}

func (e *BundleEndpoint) Command(getServerURL func() string) *cobra.Command {
	var itemsFile string
	var bundleName string
	cmd := &cobra.Command{
		Use:   "bundle <book-id>",
		Short: "Bundle narration artifacts into a zip",
		Long: `Bundle narration artifacts for a book into a single zip.

The items file is a JSON array of {url, number, title} entries, usually
assembled from a finished narration run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(itemsFile)
			if err != nil {
				return fmt.Errorf("failed to read items file: %w", err)
			}
			var items []BundleItem
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("failed to parse items file: %w", err)
			}

			client := api.NewClient(getServerURL())
			var resp BundleResponse
			err = client.Post(cmd.Context(), "/api/books/"+args[0]+"/bundle", BundleRequest{
				BundleName: bundleName,
				Items:      items,
			}, &resp)
			if err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&itemsFile, "items", "", "Path to JSON items file (required)")
	cmd.Flags().StringVar(&bundleName, "name", "", "Bundle file name")
	cmd.MarkFlagRequired("items")
	return cmd
}

// BundleDownloadEndpoint handles GET /api/books/{book_id}/bundle/{name},
// serving a previously built bundle file.
type BundleDownloadEndpoint struct{}

func (e *BundleDownloadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{book_id}/bundle/{name}", e.handler
}

func (e *BundleDownloadEndpoint) RequiresInit() bool { return true }

func (e *BundleDownloadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	name := filepath.Base(r.PathValue("name"))
	if bookID == "" || name == "" || name == "." {
		writeError(w, http.StatusBadRequest, "book_id and name are required")
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not configured")
		return
	}

	path := filepath.Join(homeDir.BookBundleDir(bookID), name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "bundle file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeFile(w, r, path)
}

func (e *BundleDownloadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "bundle-download <book-id> <name>",
		Short: "Download a built bundle file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			client := api.NewClient(getServerURL())
			data, err := client.GetRaw(ctx, fmt.Sprintf("/api/books/%s/bundle/%s", args[0], args[1]))
			if err != nil {
				return err
			}

			if outputPath == "" {
				outputPath = args[1]
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			fmt.Printf("Downloaded to: %s\n", outputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path")
	return cmd
}
