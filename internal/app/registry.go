package app

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/internal/domain"
)

// Registry is the authoritative store of job records. Each record carries
// its own lock so unrelated jobs never serialize on each other; the outer
// lock only guards the id map. All externally visible mutations flow
// through here, and every one is written through to the repository as a
// best-effort history snapshot.
type Registry struct {
	repo   domain.JobRepository
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

type jobEntry struct {
	mu  sync.Mutex
	job *domain.Job
}

// NewRegistry creates a job registry. repo may be nil, in which case no
// history is persisted.
func NewRegistry(repo domain.JobRepository, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		repo:   repo,
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// Create registers a new queued job for the given request and returns a
// snapshot of it
func (r *Registry) Create(req domain.DownloadRequest) *domain.Job {
	job := domain.NewJob(req)

	r.mu.Lock()
	r.jobs[job.ID] = &jobEntry{job: job}
	r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.Create(job.Clone()); err != nil {
			r.logger.Warn("Failed to persist job", zap.String("id", job.ID), zap.Error(err))
		}
	}
	return job.Clone()
}

// Get returns the latest snapshot of a job. Jobs from a previous process
// are served from the repository so history stays queryable across
// restarts.
func (r *Registry) Get(id string) (*domain.Job, error) {
	e, ok := r.entry(id)
	if !ok {
		if r.repo != nil {
			return r.repo.FindByID(id)
		}
		return nil, domain.NewError(domain.KindNotFound, "job not found: %s", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// RequestCancel flags a job for cooperative cancellation. A still-queued
// job transitions to Cancelled immediately; a running one keeps its state
// until the worker observes the flag. Terminal jobs are left alone.
func (r *Registry) RequestCancel(id string) (*domain.Job, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, "job not found: %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() {
		return nil, domain.NewError(domain.KindCancelled, "job %s already in terminal state %s", id, e.job.State)
	}

	e.job.CancelRequested = true
	if e.job.State == domain.StateQueued {
		e.job.MarkCancelled()
	}
	r.persistLocked(e.job)
	return e.job.Clone(), nil
}

// BeginRunning transitions a queued job to Running on behalf of a worker.
// It reports false when the job is already terminal (typically cancelled
// while queued), in which case the worker must not touch the extractor.
func (r *Registry) BeginRunning(id string) (*domain.Job, bool) {
	e, ok := r.entry(id)
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() || e.job.CancelRequested {
		return nil, false
	}
	e.job.MarkRunning()
	r.persistLocked(e.job)
	return e.job.Clone(), true
}

// BeginMerging transitions a running job to Merging. It reports false when
// a terminal transition or a cancellation request won the race.
func (r *Registry) BeginMerging(id string) bool {
	e, ok := r.entry(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() || e.job.CancelRequested || e.job.State != domain.StateRunning {
		return false
	}
	e.job.MarkMerging()
	r.persistLocked(e.job)
	return true
}

// SetProgress records best-effort progress; terminal jobs ignore it
func (r *Registry) SetProgress(id string, fraction float64) {
	e, ok := r.entry(id)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() {
		return
	}
	e.job.SetProgress(fraction)
}

// Complete finalizes a job as Completed. Whichever terminal transition
// lands first wins; a loss reports false and the result is discarded.
// A pending cancellation request also wins: the job converges to
// Cancelled even when the download already finished.
func (r *Registry) Complete(id string, result domain.JobResult) bool {
	e, ok := r.entry(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() {
		return false
	}
	if e.job.CancelRequested {
		e.job.MarkCancelled()
		r.persistLocked(e.job)
		return false
	}
	e.job.MarkCompleted(result)
	r.persistLocked(e.job)
	return true
}

// Fail finalizes a job as Failed with a structured error
func (r *Registry) Fail(id string, err error) bool {
	return r.finalize(id, func(j *domain.Job) { j.MarkFailed(err) })
}

// Cancel finalizes a job as Cancelled
func (r *Registry) Cancel(id string) bool {
	return r.finalize(id, func(j *domain.Job) { j.MarkCancelled() })
}

// List returns job history, newest first, optionally filtered by state.
// The repository backs it when available; otherwise the in-memory map is
// snapshotted.
func (r *Registry) List(state domain.JobState) ([]*domain.Job, error) {
	if r.repo != nil {
		return r.repo.FindAll(state)
	}

	r.mu.RLock()
	entries := make([]*jobEntry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	jobs := make([]*domain.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if state == "" || e.job.State == state {
			jobs = append(jobs, e.job.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs, nil
}

// Len returns the number of tracked jobs
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Stats returns job counts by state from the in-memory records
func (r *Registry) Stats() *domain.JobStats {
	r.mu.RLock()
	entries := make([]*jobEntry, 0, len(r.jobs))
	for _, e := range r.jobs {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	stats := &domain.JobStats{}
	for _, e := range entries {
		e.mu.Lock()
		state := e.job.State
		e.mu.Unlock()

		stats.Total++
		switch state {
		case domain.StateQueued:
			stats.Queued++
		case domain.StateRunning:
			stats.Running++
		case domain.StateMerging:
			stats.Merging++
		case domain.StateCompleted:
			stats.Completed++
		case domain.StateFailed:
			stats.Failed++
		case domain.StateCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

func (r *Registry) finalize(id string, apply func(*domain.Job)) bool {
	e, ok := r.entry(id)
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.IsTerminal() {
		return false
	}
	apply(e.job)
	r.persistLocked(e.job)
	return true
}

func (r *Registry) entry(id string) (*jobEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	return e, ok
}

// persistLocked writes through the latest snapshot; caller holds the entry
// lock. Persistence failures are logged, never propagated; the in-memory
// record stays authoritative.
func (r *Registry) persistLocked(job *domain.Job) {
	if r.repo == nil {
		return
	}
	if err := r.repo.Update(job.Clone()); err != nil {
		r.logger.Warn("Failed to persist job update", zap.String("id", job.ID), zap.Error(err))
	}
}
