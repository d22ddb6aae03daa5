package generation

import "encoding/json"

// Stream event records carry no explicit kind tag; the server's contract
// is which fields are present. decodeEvent turns that shape-based
// protocol into explicit variants so the orchestrator can dispatch on
// type. The precedence below mirrors the server's emission shapes; two
// structurally similar events would collide here, so the order must not
// be changed without confirming the server-side contract.

// Event is one decoded stream record.
type Event interface {
	eventKind() string
}

// StartedEvent announces that generation has begun.
type StartedEvent struct {
	Parallel bool
	Model    string
	Message  string
}

// BookCreatedEvent carries the server-assigned book ID.
type BookCreatedEvent struct {
	BookID string
}

// BatchEvent reports completion of a batch of chapters.
type BatchEvent struct {
	BookID            string
	Batch             []int
	ChaptersCompleted int
	TotalChapters     int
	Progress          int
	TotalWords        int
	BatchDuration     float64
	Message           string
}

// ChapterStatusEvent is a status-text-only update for one chapter; it
// carries no numeric progress.
type ChapterStatusEvent struct {
	ChapterNumber int
	Message       string
}

// CoverEvent reports front or back cover generation.
type CoverEvent struct {
	Type    string // "front" or "back"
	Message string
}

// CompletedEvent is the terminal completion record.
type CompletedEvent struct {
	ChaptersCompleted int
	TotalChapters     int
	TotalWords        int
	Message           string
}

// ErrorEvent is an explicit fatal error record.
type ErrorEvent struct {
	Message string
	Details string
}

func (StartedEvent) eventKind() string       { return "started" }
func (BookCreatedEvent) eventKind() string   { return "book_created" }
func (BatchEvent) eventKind() string         { return "batch" }
func (ChapterStatusEvent) eventKind() string { return "chapter_status" }
func (CoverEvent) eventKind() string         { return "cover" }
func (CompletedEvent) eventKind() string     { return "completed" }
func (ErrorEvent) eventKind() string         { return "error" }

// rawEvent uses pointers so field presence survives decoding.
type rawEvent struct {
	Phase             *string  `json:"phase"`
	BookID            *string  `json:"bookId"`
	Batch             []int    `json:"batch"`
	ChapterNumber     *int     `json:"chapterNumber"`
	Type              *string  `json:"type"`
	ChaptersCompleted *int     `json:"chaptersCompleted"`
	TotalChapters     *int     `json:"totalChapters"`
	TotalWords        *int     `json:"totalWords"`
	Progress          *int     `json:"progress"`
	BatchDuration     *float64 `json:"batchDuration"`
	Message           *string  `json:"message"`
	Error             *string  `json:"error"`
	Details           *string  `json:"details"`
	Parallel          *bool    `json:"parallel"`
	Model             *string  `json:"model"`
}

// decodeEvent parses one data: payload into a typed event. A payload
// that is not valid JSON returns (nil, false): the record is still in
// flight across a chunk boundary and must not be surfaced as an error.
// A valid payload matching no known shape also returns (nil, false).
func decodeEvent(payload []byte) (Event, bool) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, false
	}

	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	num := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}

	switch {
	case raw.Error != nil:
		return ErrorEvent{Message: *raw.Error, Details: str(raw.Details)}, true

	case raw.Phase != nil && *raw.Phase == "starting":
		ev := StartedEvent{Message: str(raw.Message)}
		if raw.Parallel != nil {
			ev.Parallel = *raw.Parallel
		}
		ev.Model = str(raw.Model)
		return ev, true

	case raw.Batch != nil:
		ev := BatchEvent{
			BookID:            str(raw.BookID),
			Batch:             raw.Batch,
			ChaptersCompleted: num(raw.ChaptersCompleted),
			TotalChapters:     num(raw.TotalChapters),
			Progress:          num(raw.Progress),
			TotalWords:        num(raw.TotalWords),
			Message:           str(raw.Message),
		}
		if raw.BatchDuration != nil {
			ev.BatchDuration = *raw.BatchDuration
		}
		return ev, true

	case raw.Type != nil && (*raw.Type == "front" || *raw.Type == "back"):
		return CoverEvent{Type: *raw.Type, Message: str(raw.Message)}, true

	case raw.ChaptersCompleted != nil && raw.TotalWords != nil:
		return CompletedEvent{
			ChaptersCompleted: *raw.ChaptersCompleted,
			TotalChapters:     num(raw.TotalChapters),
			TotalWords:        *raw.TotalWords,
			Message:           str(raw.Message),
		}, true

	case raw.ChapterNumber != nil:
		return ChapterStatusEvent{ChapterNumber: *raw.ChapterNumber, Message: str(raw.Message)}, true

	case raw.BookID != nil && *raw.BookID != "":
		return BookCreatedEvent{BookID: *raw.BookID}, true
	}

	return nil, false
}
