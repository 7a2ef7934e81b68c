package domain

// JobRepository defines the interface for job persistence.
// The in-memory registry is the authoritative store; the repository is a
// write-through history used for listing, stats, and restart reconciliation.
type JobRepository interface {
	// Create persists a new job
	Create(job *Job) error

	// Update persists the latest job snapshot
	Update(job *Job) error

	// FindByID finds a job by ID
	FindByID(id string) (*Job, error)

	// FindAll finds jobs, optionally filtered by state
	FindAll(state JobState) ([]*Job, error)

	// ResetOrphaned marks Running/Merging rows left over from a previous
	// process as failed; returns how many rows were touched
	ResetOrphaned() (int64, error)

	// GetStats returns job counts by state
	GetStats() (*JobStats, error)
}

// JobStats represents job counts by state
type JobStats struct {
	Total     int64 `json:"total"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Merging   int64 `json:"merging"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}
