// Package gensvc provides the HTTP client for the external book-generation
// service. The service is a black box: it synthesizes chapter text server-side
// and reports progress either through a batched advance endpoint or through a
// newline-delimited event stream.
package gensvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Service is the surface the orchestrators consume. Split out as an
// interface so tests can drive orchestrators with fakes.
type Service interface {
	// Advance performs one batched generation step and returns the
	// server's view of job progress.
	Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error)

	// OpenStream starts a streamed generation run and returns the raw
	// event-record stream. The caller owns the ReadCloser.
	OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
}

// Client is an HTTP implementation of Service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout applies to advance calls only. The stream connection is
	// bounded by the server closing it, not by a client-side timeout.
	Timeout time.Duration
}

// NewClient creates a new generation service client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Advance performs one batched generation step.
func (c *Client) Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate/advance", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("advance request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var advResp AdvanceResponse
	if err := json.Unmarshal(respBody, &advResp); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if !advResp.Success {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    advResp.Error,
			Details:    advResp.Details,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	return &advResp, nil
}

// OpenStream starts a streamed generation run. The returned body is the
// newline-delimited event:/data: record stream.
func (c *Client) OpenStream(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate/stream", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	// The stream stays open for the life of the run, so bypass the
	// client-level timeout.
	streamClient := &http.Client{Transport: c.httpClient.Transport}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		var errResp AdvanceResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, &ServiceError{
				StatusCode: resp.StatusCode,
				Message:    errResp.Error,
				Details:    errResp.Details,
			}
		}
		return nil, &ServiceError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("stream open failed (status %d): %s", resp.StatusCode, string(body)),
		}
	}

	return resp.Body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// Verify interface
var _ Service = (*Client)(nil)
