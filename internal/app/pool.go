package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/internal/domain"
)

// Pool executes download jobs with bounded concurrency. Jobs beyond the
// concurrency limit wait in a FIFO queue; submission never blocks on worker
// availability. Each running job carries its own cancellable context so a
// cancellation request aborts the external process without touching other
// jobs.
type Pool struct {
	registry  *Registry
	extractor domain.Extractor
	config    *domain.WorkerConfig
	outputDir string
	logger    *zap.Logger

	queue    chan string
	wg       sync.WaitGroup
	baseCtx  context.Context
	baseStop context.CancelFunc

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewPool creates a worker pool
func NewPool(registry *Registry, extractor domain.Extractor, config *domain.WorkerConfig, outputDir string, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Pool{
		registry:  registry,
		extractor: extractor,
		config:    config,
		outputDir: outputDir,
		logger:    logger,
		queue:     make(chan string, config.QueueCapacity),
		baseCtx:   ctx,
		baseStop:  stop,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Start launches the worker goroutines
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.config.Concurrency; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.logger.Info("Worker pool started", zap.Int("concurrency", p.config.Concurrency))
	})
}

// Stop cancels in-flight jobs and waits for all workers to drain
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.baseStop()
		close(p.queue)
		p.wg.Wait()
		p.logger.Info("Worker pool stopped")
	})
}

// Submit enqueues a job for execution. It returns an error only when the
// queue is full; it never waits for a worker.
func (p *Pool) Submit(jobID string) error {
	select {
	case p.queue <- jobID:
		return nil
	default:
		return domain.NewError(domain.KindInternal, "job queue full (capacity %d)", p.config.QueueCapacity)
	}
}

// CancelRunning trips the context of a running job, if any. Queued jobs
// need no tripping; the registry already cancelled them and the worker
// skips them on dequeue.
func (p *Pool) CancelRunning(jobID string) {
	p.cancelMu.Lock()
	cancel, ok := p.cancels[jobID]
	p.cancelMu.Unlock()
	if ok {
		cancel()
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for jobID := range p.queue {
		select {
		case <-p.baseCtx.Done():
			// Shutting down: whatever is still queued converges to
			// Cancelled rather than silently disappearing.
			p.registry.Cancel(jobID)
			continue
		default:
		}
		p.runJob(jobID)
	}
}

func (p *Pool) runJob(jobID string) {
	// The cancel func must be registered before the job turns Running;
	// otherwise a cancellation landing right after BeginRunning has
	// nothing to trip and the download runs to completion.
	ctx, cancel := context.WithTimeout(p.baseCtx, p.config.DownloadTimeout)
	p.registerCancel(jobID, cancel)
	defer p.unregisterCancel(jobID)
	defer cancel()

	job, ok := p.registry.BeginRunning(jobID)
	if !ok {
		// Cancelled while queued, or otherwise terminal. The extractor
		// is never invoked for such jobs.
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panic", zap.String("job_id", jobID), zap.Any("panic", r))
			p.registry.Fail(jobID, domain.NewError(domain.KindInternal, "worker panic: %v", r))
		}
	}()

	outputDir := job.Request.OutputDir
	if outputDir == "" {
		outputDir = p.outputDir
	}

	p.logger.Info("Job started",
		zap.String("job_id", jobID),
		zap.String("url", job.Request.URL))

	mergeShare := 1.0
	if job.Request.Merge {
		mergeShare = 0.9 // reserve the tail for the merge step
	}
	progress := func(fraction float64) {
		p.registry.SetProgress(jobID, fraction*mergeShare)
	}

	result, err := p.extractor.Download(ctx, job.Request, outputDir, progress)
	if err != nil {
		p.finishError(ctx, jobID, err)
		return
	}

	paths := resultPaths(result)
	if job.Request.Merge && result.NeedMerge {
		if !p.registry.BeginMerging(jobID) {
			// Cancellation won the race between download and merge.
			p.registry.Cancel(jobID)
			removeFiles(paths)
			return
		}

		container := job.Request.Container
		if container == "" {
			container = "mp4"
		}
		outputPath := filepath.Join(outputDir, jobID+"."+container)

		merged, err := p.extractor.Merge(ctx, result.VideoPath, result.AudioPath, container, outputPath)
		// Split streams are intermediate either way.
		removeFiles([]string{result.AudioPath, result.VideoPath})
		if err != nil {
			removeFiles([]string{outputPath})
			p.finishError(ctx, jobID, err)
			return
		}
		result.FilePath = merged.FilePath
		result.FileSize = merged.FileSize
		paths = []string{merged.FilePath}
	}

	if !p.registry.Complete(jobID, domain.JobResult{FilePath: result.FilePath, FileSize: result.FileSize}) {
		// A cancellation landed first; its outcome stands and our output
		// is discarded.
		removeFiles(paths)
		return
	}

	p.logger.Info("Job completed",
		zap.String("job_id", jobID),
		zap.String("file", result.FilePath))
}

// finishError maps an execution failure to its terminal state: user
// cancellation converges to Cancelled, a tripped deadline to a Timeout
// failure, anything else to Failed with the classified error.
func (p *Pool) finishError(ctx context.Context, jobID string, err error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		p.registry.Fail(jobID, domain.WrapError(domain.KindTimeout, err))
		p.logger.Warn("Job timed out", zap.String("job_id", jobID), zap.Error(err))
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		p.registry.Cancel(jobID)
		p.logger.Info("Job cancelled", zap.String("job_id", jobID))
	default:
		p.registry.Fail(jobID, err)
		p.logger.Warn("Job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (p *Pool) registerCancel(jobID string, cancel context.CancelFunc) {
	p.cancelMu.Lock()
	p.cancels[jobID] = cancel
	p.cancelMu.Unlock()
}

func (p *Pool) unregisterCancel(jobID string) {
	p.cancelMu.Lock()
	delete(p.cancels, jobID)
	p.cancelMu.Unlock()
}

func resultPaths(result *domain.DownloadResult) []string {
	var paths []string
	for _, p := range []string{result.FilePath, result.AudioPath, result.VideoPath} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func removeFiles(paths []string) {
	for _, path := range paths {
		if path != "" {
			os.Remove(path)
		}
	}
}
