// Package audio drives narration generation against the external audio
// service: one concatenated full-book artifact, or a strictly sequential
// per-chapter pipeline with its own cancellation semantics.
package audio

// ChapterStatus is derived from artifact presence, never stored.
type ChapterStatus string

const (
	ChapterPending ChapterStatus = "pending"
	ChapterReady   ChapterStatus = "ready"
)

// ChapterState is the per-chapter narration record. Created when chapters
// are loaded; mutated in place on success (regeneration overwrites the
// prior artifact); never deleted by this subsystem.
type ChapterState struct {
	ChapterNumber   int     `json:"chapter_number"`
	Title           string  `json:"title,omitempty"`
	AudioURL        string  `json:"audio_url,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Status reports whether the chapter has a narration artifact.
func (c *ChapterState) Status() ChapterStatus {
	if c.AudioURL != "" {
		return ChapterReady
	}
	return ChapterPending
}

// VoiceParams selects the narration engine and voice for a run.
type VoiceParams struct {
	Provider string  `json:"provider"`
	Voice    string  `json:"voice"`
	Model    string  `json:"model,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// Result is the outcome of a narration run. For chapter mode, Completed
// lists the chapter numbers generated during this run, in order; Chapters
// is the full post-run state including artifacts from earlier runs. For
// full-book mode only FullBookURL is set.
type Result struct {
	FullBookURL string          `json:"full_book_url,omitempty"`
	Chapters    []*ChapterState `json:"chapters,omitempty"`
	Completed   []int           `json:"completed,omitempty"`
	Cancelled   bool            `json:"cancelled,omitempty"`
}

// Voice describes one available narration voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Provider    string `json:"provider,omitempty"`
	Description string `json:"description,omitempty"`
}
