package generation

import "fmt"

// FatalError ends a run after the bounded retry budget is exhausted or the
// stream reports an explicit error record. It carries the last known book
// ID and progress so a caller can offer a resume rather than a restart.
type FatalError struct {
	BookID            string
	ChaptersCompleted int
	Message           string
	Err               error
}

func (e *FatalError) Error() string {
	if e.BookID != "" {
		return fmt.Sprintf("generation failed (book %s, %d chapters completed): %s", e.BookID, e.ChaptersCompleted, e.Message)
	}
	return fmt.Sprintf("generation failed: %s", e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Resumable reports whether the run can be resumed from server-side state.
func (e *FatalError) Resumable() bool { return e.BookID != "" }
