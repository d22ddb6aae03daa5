package gensvc

import (
	"encoding/json"
	"fmt"
)

// AdvanceRequest is the request body for the batched advance endpoint.
// BookID is omitted on the first call; the server assigns one and the
// client supplies it on every call thereafter.
type AdvanceRequest struct {
	Outline         json.RawMessage `json:"outline"`
	Config          json.RawMessage `json:"config,omitempty"`
	ModelID         string          `json:"modelId"`
	BookID          string          `json:"bookId,omitempty"`
	GenerationSpeed string          `json:"generationSpeed,omitempty"`
	UseParallel     bool            `json:"useParallel"`
}

// AdvanceResponse is the server's view of job progress after one advance
// step. Error/Details are populated when Success is false.
type AdvanceResponse struct {
	Success           bool   `json:"success"`
	Phase             string `json:"phase,omitempty"`
	BookID            string `json:"bookId,omitempty"`
	ChaptersCompleted int    `json:"chaptersCompleted,omitempty"`
	TotalChapters     int    `json:"totalChapters,omitempty"`
	Progress          int    `json:"progress,omitempty"`
	Message           string `json:"message,omitempty"`
	Error             string `json:"error,omitempty"`
	Details           string `json:"details,omitempty"`
}

// StreamRequest is the request body for the stream endpoint. Stream runs
// never resume; there is no bookId field.
type StreamRequest struct {
	Outline         json.RawMessage `json:"outline"`
	Config          json.RawMessage `json:"config,omitempty"`
	ModelID         string          `json:"modelId"`
	GenerationSpeed string          `json:"generationSpeed,omitempty"`
	UseParallel     bool            `json:"useParallel"`
}

// ServiceError is a failure reported by the generation service itself,
// as opposed to a transport failure.
type ServiceError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("generation service error (status %d): %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("generation service error (status %d): %s", e.StatusCode, e.Message)
}
