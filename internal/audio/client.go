package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds one narration request. Synthesis is
	// slow; a full chapter can legitimately take several minutes.
	DefaultRequestTimeout = 12 * time.Minute
)

// Service is the audio-service surface the orchestrator consumes.
type Service interface {
	// Generate requests narration. ChapterNumbers empty means full-book
	// mode producing one concatenated artifact.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ListVoices returns the available narration voices.
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Request is the audio service request body.
type Request struct {
	UserID         string  `json:"userId"`
	BookID         string  `json:"bookId"`
	Provider       string  `json:"provider"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed,omitempty"`
	Model          string  `json:"model,omitempty"`
	ChapterNumbers []int   `json:"chapterNumbers,omitempty"`
}

// Response is the audio service response body. Type is "full" or
// "chapters"; Error/Details/Hint are populated when Success is false.
type Response struct {
	Success  bool           `json:"success"`
	Type     string         `json:"type,omitempty"`
	AudioURL string         `json:"audioUrl,omitempty"`
	Chapters []ChapterAudio `json:"chapters,omitempty"`
	Error    string         `json:"error,omitempty"`
	Details  string         `json:"details,omitempty"`
	Hint     string         `json:"hint,omitempty"`
}

// ChapterAudio is one generated chapter artifact in a chapters response.
type ChapterAudio struct {
	ChapterNumber int     `json:"chapterNumber"`
	AudioURL      string  `json:"audioUrl"`
	Duration      float64 `json:"duration,omitempty"`
}

// ClientConfig holds configuration for the audio service client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is an HTTP implementation of Service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new audio service client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Generate requests narration from the audio service.
func (c *Client) Generate(ctx context.Context, req Request) (*Response, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/audio/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	var audioResp Response
	if err := json.Unmarshal(respBody, &audioResp); err != nil {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unreadable response (status %d)", resp.StatusCode),
			Details:    err.Error(),
		}
	}

	if !audioResp.Success {
		return nil, &ServiceError{
			StatusCode:  resp.StatusCode,
			Message:     audioResp.Error,
			Details:     audioResp.Details,
			ServiceHint: audioResp.Hint,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	return &audioResp, nil
}

// ListVoices retrieves available voices from the audio service.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/audio/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Voices, nil
}

// classifyTransportError separates deadline expiry from connectivity
// failures so the caller can show the right remediation.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Err: err}
	}
	return &NetworkError{Err: err}
}

// Verify interface
var _ Service = (*Client)(nil)
