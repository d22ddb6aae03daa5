package audio

import "fmt"

// The three failure classes are mutually distinguishable because the
// user-facing remediation differs for each.

// TimeoutError means narration synthesis exceeded the per-request
// deadline. Remediation: request fewer chapters at a time.
type TimeoutError struct {
	ChapterNumber int
	Err           error
}

func (e *TimeoutError) Error() string {
	if e.ChapterNumber > 0 {
		return fmt.Sprintf("narration timed out for chapter %d", e.ChapterNumber)
	}
	return "narration timed out"
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// Hint returns the user-facing remediation.
func (e *TimeoutError) Hint() string {
	return "Narration is taking too long. Try generating fewer chapters at a time."
}

// NetworkError means the request never produced a service response.
// Remediation: check connectivity.
type NetworkError struct {
	ChapterNumber int
	Err           error
}

func (e *NetworkError) Error() string {
	if e.ChapterNumber > 0 {
		return fmt.Sprintf("narration request failed for chapter %d: %v", e.ChapterNumber, e.Err)
	}
	return fmt.Sprintf("narration request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Hint returns the user-facing remediation.
func (e *NetworkError) Hint() string {
	return "Could not reach the narration service. Check your connection and try again."
}

// ServiceError is a failure reported by the audio service itself.
// Remediation defaults to checking the configured API key, unless the
// service supplied its own hint.
type ServiceError struct {
	ChapterNumber int
	StatusCode    int
	Message       string
	Details       string
	ServiceHint   string
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = msg + ": " + e.Details
	}
	if e.ChapterNumber > 0 {
		return fmt.Sprintf("narration service error for chapter %d: %s", e.ChapterNumber, msg)
	}
	return fmt.Sprintf("narration service error: %s", msg)
}

// Hint returns the user-facing remediation.
func (e *ServiceError) Hint() string {
	if e.ServiceHint != "" {
		return e.ServiceHint
	}
	return "The narration service rejected the request. Check the configured API key."
}
