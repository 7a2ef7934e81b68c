package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobState represents the current state of a download job
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateMerging   JobState = "merging"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// DownloadRequest holds the normalized parameters of a download job.
// Validation happens once at the facade boundary; everything downstream
// trusts these fields.
type DownloadRequest struct {
	URL           string `json:"url" gorm:"not null"`
	Cookies       string `json:"-" gorm:"-"`
	FormatID      string `json:"format_id,omitempty"`
	AudioFormatID string `json:"audio_format_id,omitempty"`
	MaxHeight     int    `json:"max_height,omitempty"`
	PreferredExt  string `json:"preferred_ext,omitempty"`
	Container     string `json:"container,omitempty"`
	Merge         bool   `json:"merge,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
}

// JobResult is populated only when a job completes
type JobResult struct {
	FilePath string `json:"file_path,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// Job represents one tracked download/merge request
type Job struct {
	ID              string       `json:"id" gorm:"primaryKey"`
	Request         DownloadRequest `json:"request" gorm:"embedded;embeddedPrefix:request_"`
	State           JobState     `json:"state" gorm:"not null;index"`
	Progress        float64      `json:"progress"`
	Result          JobResult    `json:"result,omitempty" gorm:"embedded;embeddedPrefix:result_"`
	ErrorKind       ErrorKind    `json:"error_kind,omitempty"`
	ErrorSubkind    ErrorSubkind `json:"error_subkind,omitempty"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

// NewJob creates a queued job for the given request
func NewJob(req DownloadRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.New().String(),
		Request:   req,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkRunning transitions the job to Running
func (j *Job) MarkRunning() {
	j.State = StateRunning
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkMerging transitions the job to Merging
func (j *Job) MarkMerging() {
	j.State = StateMerging
	j.UpdatedAt = time.Now()
}

// SetProgress raises the completion fraction; progress never goes backwards
func (j *Job) SetProgress(p float64) {
	if p > j.Progress {
		j.Progress = p
		j.UpdatedAt = time.Now()
	}
}

// MarkCompleted transitions the job to Completed with its result
func (j *Job) MarkCompleted(result JobResult) {
	j.State = StateCompleted
	j.Result = result
	j.Progress = 1.0
	now := time.Now()
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// MarkFailed transitions the job to Failed with a structured error
func (j *Job) MarkFailed(err error) {
	j.State = StateFailed
	j.ErrorKind = KindOf(err)
	if de, ok := err.(*Error); ok {
		j.ErrorSubkind = de.Subkind
	}
	j.ErrorMessage = err.Error()
	now := time.Now()
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// MarkCancelled transitions the job to Cancelled
func (j *Job) MarkCancelled() {
	j.State = StateCancelled
	now := time.Now()
	j.FinishedAt = &now
	j.UpdatedAt = now
}

// IsTerminal reports whether the job reached a terminal state
func (j *Job) IsTerminal() bool {
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateCancelled
}

// Clone returns a copy safe to hand to pollers
func (j *Job) Clone() *Job {
	c := *j
	return &c
}
