package app

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/velocity-go/internal/domain"
)

// fakeExtractor implements domain.Extractor for pool and service tests.
// Download behaviour is pluggable per test; counters track invocations.
type fakeExtractor struct {
	downloadCalls int32
	fetchCalls    int32
	active        int32
	maxActive     int32

	downloadFn func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error)
	mergeFn    func(ctx context.Context, videoPath, audioPath, container, outputPath string) (*domain.MergeResult, error)
	metadataFn func(ctx context.Context) (*domain.Metadata, error)

	metadata *domain.Metadata
	formats  *domain.FormatList
	stream   *domain.StreamURL
	fetchErr error
}

func (f *fakeExtractor) FetchMetadata(ctx context.Context, url string, opts domain.LookupOptions) (*domain.Metadata, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.metadataFn != nil {
		return f.metadataFn(ctx)
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.metadata != nil {
		return f.metadata, nil
	}
	return &domain.Metadata{ID: "vid", Title: "title"}, nil
}

func (f *fakeExtractor) FetchFormats(ctx context.Context, url string, opts domain.LookupOptions) (*domain.FormatList, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.formats != nil {
		return f.formats, nil
	}
	return &domain.FormatList{}, nil
}

func (f *fakeExtractor) FetchRaw(ctx context.Context, url string, opts domain.LookupOptions) (map[string]interface{}, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return map[string]interface{}{"id": "vid"}, nil
}

func (f *fakeExtractor) ResolveStream(ctx context.Context, url string, opts domain.StreamOptions) (*domain.StreamURL, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.stream != nil {
		return f.stream, nil
	}
	return &domain.StreamURL{AudioURL: "https://cdn.example.com/a"}, nil
}

func (f *fakeExtractor) FetchPlaylist(ctx context.Context, url string, opts domain.PageOptions) (*domain.PlaylistPage, error) {
	atomic.AddInt32(&f.fetchCalls, 1)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return &domain.PlaylistPage{Entries: []domain.PlaylistEntry{{ID: "e1"}, {ID: "e2"}, {ID: "e3"}}}, nil
}

func (f *fakeExtractor) Download(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
	atomic.AddInt32(&f.downloadCalls, 1)
	cur := atomic.AddInt32(&f.active, 1)
	for {
		max := atomic.LoadInt32(&f.maxActive)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxActive, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.active, -1)

	if f.downloadFn != nil {
		return f.downloadFn(ctx, req, outputDir, progress)
	}
	return &domain.DownloadResult{FilePath: filepath.Join(outputDir, "out.mp4"), FileSize: 1}, nil
}

func (f *fakeExtractor) Merge(ctx context.Context, videoPath, audioPath, container, outputPath string) (*domain.MergeResult, error) {
	if f.mergeFn != nil {
		return f.mergeFn(ctx, videoPath, audioPath, container, outputPath)
	}
	return &domain.MergeResult{FilePath: outputPath, FileSize: 2}, nil
}

func newTestPool(t *testing.T, fx *fakeExtractor, cfg domain.WorkerConfig) (*Pool, *Registry) {
	t.Helper()
	registry := NewRegistry(nil, nil)
	pool := NewPool(registry, fx, &cfg, t.TempDir(), nil)
	t.Cleanup(pool.Stop)
	return pool, registry
}

func waitTerminal(t *testing.T, r *Registry, id string) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		var err error
		job, err = r.Get(id)
		return err == nil && job.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return job
}

func TestPool_CompletesJob(t *testing.T) {
	fx := &fakeExtractor{}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateCompleted, got.State)
	assert.Equal(t, 1.0, got.Progress)
	assert.NotEmpty(t, got.Result.FilePath)
}

func TestPool_ConcurrencyBound(t *testing.T) {
	release := make(chan struct{})
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &domain.DownloadResult{FilePath: filepath.Join(outputDir, "out.mp4")}, nil
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 2, QueueCapacity: 16, DownloadTimeout: time.Minute,
	})
	pool.Start()

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
		require.NoError(t, pool.Submit(job.ID))
		ids = append(ids, job.ID)
	}

	// Both workers must be busy before we let anything finish.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fx.active) == 2
	}, 5*time.Second, 5*time.Millisecond)
	close(release)

	for _, id := range ids {
		got := waitTerminal(t, registry, id)
		assert.Equal(t, domain.StateCompleted, got.State)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&fx.maxActive), int32(2))
	assert.Equal(t, int32(6), atomic.LoadInt32(&fx.downloadCalls))
}

func TestPool_SubmitQueueFull(t *testing.T) {
	fx := &fakeExtractor{}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 1, DownloadTimeout: time.Minute,
	})
	// Pool deliberately not started: the queue fills immediately.

	a := registry.Create(domain.DownloadRequest{URL: "https://example.com/a"})
	b := registry.Create(domain.DownloadRequest{URL: "https://example.com/b"})

	require.NoError(t, pool.Submit(a.ID))
	err := pool.Submit(b.ID)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInternal))
}

func TestPool_QueuedCancelNeverInvokesExtractor(t *testing.T) {
	fx := &fakeExtractor{}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))

	_, err := registry.RequestCancel(job.ID)
	require.NoError(t, err)

	pool.Start()

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateCancelled, got.State)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fx.downloadCalls))
}

func TestPool_RunningCancelConverges(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))
	<-started

	_, err := registry.RequestCancel(job.ID)
	require.NoError(t, err)
	pool.CancelRunning(job.ID)

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateCancelled, got.State)
}

func TestPool_CancelIgnoredByDownloadStillConverges(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			once.Do(func() { close(started) })
			<-release
			// Returns success despite the tripped context, like an
			// external process that already wrote its output.
			return &domain.DownloadResult{FilePath: filepath.Join(outputDir, "out.mp4")}, nil
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))
	<-started

	_, err := registry.RequestCancel(job.ID)
	require.NoError(t, err)
	pool.CancelRunning(job.ID)
	close(release)

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateCancelled, got.State)
	assert.Empty(t, got.Result.FilePath)
}

func TestPool_TimeoutMapsToTimeoutKind(t *testing.T) {
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: 30 * time.Millisecond,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, domain.KindTimeout, got.ErrorKind)
}

func TestPool_ExternalFailureClassified(t *testing.T) {
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			return nil, domain.NewExternalError(domain.SubkindAuthRequired,
				assert.AnError)
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v"})
	require.NoError(t, pool.Submit(job.ID))

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateFailed, got.State)
	assert.Equal(t, domain.KindExternal, got.ErrorKind)
	assert.Equal(t, domain.SubkindAuthRequired, got.ErrorSubkind)
}

func TestPool_MergeFlow(t *testing.T) {
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			progress(1.0)
			return &domain.DownloadResult{
				VideoPath: filepath.Join(outputDir, "v.mp4"),
				AudioPath: filepath.Join(outputDir, "a.m4a"),
				NeedMerge: true,
			}, nil
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	job := registry.Create(domain.DownloadRequest{URL: "https://example.com/v", Merge: true})
	require.NoError(t, pool.Submit(job.ID))

	got := waitTerminal(t, registry, job.ID)
	assert.Equal(t, domain.StateCompleted, got.State)
	assert.Equal(t, filepath.Ext(got.Result.FilePath), ".mp4")
	assert.Equal(t, int64(2), got.Result.FileSize)
}

func TestPool_PanicIsolatedToJob(t *testing.T) {
	var first int32
	fx := &fakeExtractor{
		downloadFn: func(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
			if atomic.CompareAndSwapInt32(&first, 0, 1) {
				panic("boom")
			}
			return &domain.DownloadResult{FilePath: filepath.Join(outputDir, "ok.mp4")}, nil
		},
	}
	pool, registry := newTestPool(t, fx, domain.WorkerConfig{
		Concurrency: 1, QueueCapacity: 4, DownloadTimeout: time.Minute,
	})
	pool.Start()

	bad := registry.Create(domain.DownloadRequest{URL: "https://example.com/bad"})
	good := registry.Create(domain.DownloadRequest{URL: "https://example.com/good"})
	require.NoError(t, pool.Submit(bad.ID))
	require.NoError(t, pool.Submit(good.ID))

	gotBad := waitTerminal(t, registry, bad.ID)
	assert.Equal(t, domain.StateFailed, gotBad.State)
	assert.Equal(t, domain.KindInternal, gotBad.ErrorKind)

	gotGood := waitTerminal(t, registry, good.ID)
	assert.Equal(t, domain.StateCompleted, gotGood.State)
}
