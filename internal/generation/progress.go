// Package generation contains the orchestration engine for book-generation
// runs: a shared progress state machine plus two orchestrators that drive
// the external generation service, one over batched advance calls and one
// over a streamed event log.
package generation

// Phase is the discrete stage of a generation run.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseCreating   Phase = "creating"
	PhaseGenerating Phase = "generating"
	PhaseCover      Phase = "cover"
	PhaseCompleted  Phase = "completed"
	PhaseError      Phase = "error"
)

// Job is the canonical client-side progress state for one generation run.
// It is owned by exactly one orchestrator at a time; callers observe it
// through snapshots delivered to the progress callback.
type Job struct {
	Phase             Phase  `json:"phase"`
	BookID            string `json:"book_id,omitempty"`
	ChaptersCompleted int    `json:"chapters_completed"`
	TotalChapters     int    `json:"total_chapters"`
	Progress          int    `json:"progress"`
	Message           string `json:"message,omitempty"`
	CurrentBatch      []int  `json:"current_batch,omitempty"`
	TotalWords        int    `json:"total_words,omitempty"`
	Parallel          bool   `json:"parallel,omitempty"`
	Model             string `json:"model,omitempty"`
	Cancelled         bool   `json:"cancelled,omitempty"`
}

// Update is a partial change to a Job. Nil pointer fields are left
// untouched; set fields win over current state, except the monotonic
// counters guarded in Apply.
type Update struct {
	Phase             *Phase
	BookID            string
	ChaptersCompleted *int
	TotalChapters     *int
	Progress          *int
	Message           *string
	CurrentBatch      []int
	TotalWords        *int
	Parallel          *bool
	Model             *string
}

// Model merges partial updates into a Job. It performs no I/O and is not
// thread-safe: exactly one writer is active per run.
type Model struct {
	job        Job
	onProgress func(Job)
}

// NewModel creates a progress model. onProgress, if non-nil, receives a
// snapshot after every applied update.
func NewModel(onProgress func(Job)) *Model {
	return &Model{
		job:        Job{Phase: PhaseIdle},
		onProgress: onProgress,
	}
}

// Apply merges an update into the current state. Last write wins per
// field, with three guards:
//   - ChaptersCompleted and Progress never decrease within a run, which
//     defends against out-of-order or duplicate records
//   - BookID is write-once; a different ID later in the run is ignored
//   - Progress reaches 100 only at PhaseCompleted; otherwise it is
//     capped at 99
func (m *Model) Apply(u Update) {
	if u.Phase != nil {
		m.job.Phase = *u.Phase
	}
	if u.BookID != "" && m.job.BookID == "" {
		m.job.BookID = u.BookID
	}
	if u.ChaptersCompleted != nil && *u.ChaptersCompleted > m.job.ChaptersCompleted {
		m.job.ChaptersCompleted = *u.ChaptersCompleted
	}
	if u.TotalChapters != nil {
		m.job.TotalChapters = *u.TotalChapters
	}
	if u.Progress != nil {
		p := *u.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p >= 100 && m.job.Phase != PhaseCompleted {
			p = 99
		}
		if p > m.job.Progress {
			m.job.Progress = p
		}
	}
	if u.Message != nil {
		m.job.Message = *u.Message
	}
	if u.CurrentBatch != nil {
		m.job.CurrentBatch = append([]int(nil), u.CurrentBatch...)
	}
	if u.TotalWords != nil {
		m.job.TotalWords = *u.TotalWords
	}
	if u.Parallel != nil {
		m.job.Parallel = *u.Parallel
	}
	if u.Model != nil {
		m.job.Model = *u.Model
	}

	if m.onProgress != nil {
		m.onProgress(m.Snapshot())
	}
}

// MarkCancelled tags the run as cancelled. Recorded progress is preserved.
func (m *Model) MarkCancelled() {
	m.job.Cancelled = true
	if m.onProgress != nil {
		m.onProgress(m.Snapshot())
	}
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Job {
	job := m.job
	job.CurrentBatch = append([]int(nil), m.job.CurrentBatch...)
	return job
}

// helpers for building Updates without taking addresses of temporaries

func phasePtr(p Phase) *Phase { return &p }
func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
