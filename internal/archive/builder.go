// Package archive packages completed narration artifacts into a single
// downloadable zip bundle, or falls back to per-item transfer.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/fablepress/fable/internal/metrics"
)

// ErrAllItemsFailed is returned when no item could be fetched.
var ErrAllItemsFailed = errors.New("all archive items failed to download")

// ArchiveError wraps a failure while writing the bundle itself, which
// triggers the per-item fallback rather than failing the request.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string { return fmt.Sprintf("bundle creation failed: %v", e.Err) }
func (e *ArchiveError) Unwrap() error { return e.Err }

// Item is one artifact to include in a bundle.
type Item struct {
	URL    string
	Number int
	Title  string
}

// Fetcher retrieves artifact bytes. Split out so tests can fake it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Delivery receives the produced files. For an HTTP caller this writes
// the download response; the CLI writes to disk.
type Delivery interface {
	SendFile(ctx context.Context, name string, data []byte) error
}

// Report describes what the build produced.
type Report struct {
	BundleName string
	Bundled    []string
	Omitted    []Item
	Degraded   bool
}

// Builder packages artifacts into bundles.
type Builder struct {
	fetch  Fetcher
	logger *slog.Logger
}

// NewBuilder creates an archive builder.
func NewBuilder(fetch Fetcher, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{fetch: fetch, logger: logger}
}

// Build fetches each item sequentially and delivers either a direct
// single-item transfer (exactly one item) or a zip bundle. A zero-byte
// or failed fetch is an omission, not a fatal error; only if every item
// fails does the whole operation fail. If writing the bundle fails, the
// build degrades to per-item transfer of the successes, in order.
func (b *Builder) Build(ctx context.Context, bundleName string, items []Item, out Delivery) (*Report, error) {
	if len(items) == 0 {
		return nil, errors.New("no items to bundle")
	}

	if len(items) == 1 {
		return b.single(ctx, items[0], out)
	}

	report := &Report{BundleName: bundleName}
	type fetched struct {
		name string
		data []byte
	}
	var files []fetched

	// Sequential fetch bounds memory and connection use.
	for _, item := range items {
		data, err := b.fetch.Fetch(ctx, item.URL)
		if err != nil || len(data) == 0 {
			report.Omitted = append(report.Omitted, item)
			metrics.ArchiveItemsOmitted.Inc()
			b.logger.Warn("archive item omitted",
				"number", item.Number,
				"title", item.Title,
				"error", err)
			continue
		}
		files = append(files, fetched{name: ItemFileName(item.Number, item.Title), data: data})
	}

	if len(files) == 0 {
		return report, ErrAllItemsFailed
	}

	var buf bytes.Buffer
	err := func() error {
		zw := zip.NewWriter(&buf)
		for _, f := range files {
			w, err := zw.Create(f.name)
			if err != nil {
				zw.Close()
				return err
			}
			if _, err := w.Write(f.data); err != nil {
				zw.Close()
				return err
			}
			report.Bundled = append(report.Bundled, f.name)
		}
		return zw.Close()
	}()
	if err == nil {
		err = out.SendFile(ctx, bundleName, buf.Bytes())
	}

	if err != nil {
		// Degrade to per-item transfer in the same order.
		b.logger.Warn("bundle delivery failed, degrading to per-item transfer", "error", err)
		report.Degraded = true
		report.Bundled = nil
		for _, f := range files {
			if sendErr := out.SendFile(ctx, f.name, f.data); sendErr != nil {
				b.logger.Warn("per-item transfer failed",
					"name", f.name,
					"error", sendErr)
				continue
			}
			report.Bundled = append(report.Bundled, f.name)
		}
		if len(report.Bundled) == 0 {
			return report, &ArchiveError{Err: err}
		}
		return report, nil
	}

	return report, nil
}

func (b *Builder) single(ctx context.Context, item Item, out Delivery) (*Report, error) {
	data, err := b.fetch.Fetch(ctx, item.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %q: %w", item.Title, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty artifact for %q", item.Title)
	}

	name := ItemFileName(item.Number, item.Title)
	if err := out.SendFile(ctx, name, data); err != nil {
		return nil, fmt.Errorf("failed to deliver %q: %w", name, err)
	}
	return &Report{Bundled: []string{name}}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// ItemFileName derives a stable, collision-resistant, filesystem-safe
// name: two-digit zero-padded number plus the sanitized title.
func ItemFileName(number int, title string) string {
	sanitized := unsafeNameChars.ReplaceAllString(strings.ToLower(title), "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "chapter"
	}
	return fmt.Sprintf("%02d_%s.mp3", number, sanitized)
}

// HTTPFetcher fetches artifacts over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher with a bounded per-item timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads one artifact.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// Verify interface
var _ Fetcher = (*HTTPFetcher)(nil)
