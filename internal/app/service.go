package app

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/internal/cache"
	"github.com/yourusername/velocity-go/internal/domain"
	"github.com/yourusername/velocity-go/internal/ratelimit"
)

// Service is the single entry surface used by the HTTP layer. Every call
// passes the rate limiter first; a rejection short-circuits before the
// cache or the registry is touched. Validation happens here and only here.
type Service struct {
	config    *domain.Config
	limiter   *ratelimit.Limiter
	registry  *Registry
	pool      *Pool
	extractor domain.Extractor
	logger    *zap.Logger

	metaCache    *cache.Cache[*domain.Metadata]
	formatsCache *cache.Cache[*domain.FormatList]
	streamCache  *cache.Cache[*domain.StreamURL]
	rawCache     *cache.Cache[map[string]interface{}]

	startedAt time.Time
	stop      chan struct{}
}

// NewService wires the orchestration core together
func NewService(config *domain.Config, registry *Registry, pool *Pool, extractor domain.Extractor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	sweep := config.Cache.SweepInterval
	return &Service{
		config:       config,
		limiter:      ratelimit.New(config.RateLimit.Quota, config.RateLimit.Window),
		registry:     registry,
		pool:         pool,
		extractor:    extractor,
		logger:       logger,
		metaCache:    cache.New[*domain.Metadata](sweep),
		formatsCache: cache.New[*domain.FormatList](sweep),
		streamCache:  cache.New[*domain.StreamURL](sweep),
		rawCache:     cache.New[map[string]interface{}](sweep),
		startedAt:    time.Now(),
		stop:         make(chan struct{}),
	}
}

// Start launches the worker pool and the limiter janitor
func (s *Service) Start() {
	s.pool.Start()
	go s.pruneLoop()
}

// Shutdown drains the pool and releases cache resources. In-flight jobs
// are cancelled rather than awaited.
func (s *Service) Shutdown() {
	close(s.stop)
	s.pool.Stop()
	s.metaCache.Close()
	s.formatsCache.Close()
	s.streamCache.Close()
	s.rawCache.Close()
}

// LookupMetadata resolves simplified metadata, cache-backed
func (s *Service) LookupMetadata(ctx context.Context, clientID, url string, opts domain.LookupOptions) (*domain.Metadata, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := domain.ValidateURL(url); err != nil {
		return nil, err
	}

	key := domain.CacheKey(url, opts.Cookies, "")
	return s.metaCache.GetOrCompute(ctx, key, s.config.Cache.TTL, func(ctx context.Context) (*domain.Metadata, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Extractor.ExtractTimeout)
		defer cancel()
		meta, err := s.extractor.FetchMetadata(ctx, url, opts)
		return meta, extractTimeout(err)
	})
}

// LookupFormats resolves the format list, cache-backed
func (s *Service) LookupFormats(ctx context.Context, clientID, url string, opts domain.LookupOptions) (*domain.FormatList, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := domain.ValidateURL(url); err != nil {
		return nil, err
	}

	key := domain.CacheKey(url, opts.Cookies, "formats")
	return s.formatsCache.GetOrCompute(ctx, key, s.config.Cache.TTL, func(ctx context.Context) (*domain.FormatList, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Extractor.ExtractTimeout)
		defer cancel()
		list, err := s.extractor.FetchFormats(ctx, url, opts)
		return list, extractTimeout(err)
	})
}

// LookupRaw resolves the unprocessed extraction-tool payload, cache-backed
func (s *Service) LookupRaw(ctx context.Context, clientID, url string, opts domain.LookupOptions) (map[string]interface{}, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := domain.ValidateURL(url); err != nil {
		return nil, err
	}

	key := domain.CacheKey(url, opts.Cookies, "raw")
	return s.rawCache.GetOrCompute(ctx, key, s.config.Cache.TTL, func(ctx context.Context) (map[string]interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Extractor.ExtractTimeout)
		defer cancel()
		raw, err := s.extractor.FetchRaw(ctx, url, opts)
		return raw, extractTimeout(err)
	})
}

// ResolveStream resolves short-lived stream URLs. These expire quickly
// upstream, so they are cached under their own much shorter TTL; a zero
// stream TTL disables caching while still collapsing concurrent callers.
func (s *Service) ResolveStream(ctx context.Context, clientID, url string, opts domain.StreamOptions) (*domain.StreamURL, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := domain.ValidateURL(url); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	key := domain.CacheKey(url, opts.Cookies, "stream:"+streamKeySuffix(opts))
	return s.streamCache.GetOrCompute(ctx, key, s.config.Cache.StreamTTL, func(ctx context.Context) (*domain.StreamURL, error) {
		ctx, cancel := context.WithTimeout(ctx, s.config.Extractor.ExtractTimeout)
		defer cancel()
		stream, err := s.extractor.ResolveStream(ctx, url, opts)
		return stream, extractTimeout(err)
	})
}

// Playlist resolves a paginated playlist listing; never cached
func (s *Service) Playlist(ctx context.Context, clientID, url string, opts domain.PageOptions) (*domain.PlaylistPage, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := domain.ValidateURL(url); err != nil {
		return nil, err
	}
	return s.fetchPage(ctx, url, opts, "")
}

// Library resolves a paginated library listing (liked, watchlater,
// playlists); never cached
func (s *Service) Library(ctx context.Context, clientID, kind string, opts domain.PageOptions) (*domain.PlaylistPage, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	url, err := domain.LibraryURL(kind)
	if err != nil {
		return nil, err
	}
	return s.fetchPage(ctx, url, opts, kind)
}

// StartDownload creates a job and hands it to the worker pool. It returns
// the queued job snapshot immediately; it never waits for a worker.
func (s *Service) StartDownload(ctx context.Context, clientID string, req domain.DownloadRequest) (*domain.Job, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	job := s.registry.Create(req)
	if err := s.pool.Submit(job.ID); err != nil {
		s.registry.Fail(job.ID, err)
		return nil, err
	}

	s.logger.Info("Download job created",
		zap.String("job_id", job.ID),
		zap.String("url", req.URL))
	return job, nil
}

// GetJob returns the latest snapshot of a job
func (s *Service) GetJob(clientID, id string) (*domain.Job, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	return s.registry.Get(id)
}

// ListJobs returns job history, optionally filtered by state
func (s *Service) ListJobs(clientID string, state domain.JobState) ([]*domain.Job, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}
	return s.registry.List(state)
}

// CancelJob requests cooperative cancellation of a job
func (s *Service) CancelJob(clientID, id string) (*domain.Job, error) {
	if !s.limiter.Allow(clientID) {
		return nil, rateLimited(clientID)
	}

	job, err := s.registry.RequestCancel(id)
	if err != nil {
		return nil, err
	}
	// Trip the running context, if the job already reached a worker.
	s.pool.CancelRunning(id)

	s.logger.Info("Job cancellation requested", zap.String("job_id", id))
	return job, nil
}

// ClearCache drops all cached lookup results
func (s *Service) ClearCache() {
	s.metaCache.Clear()
	s.formatsCache.Clear()
	s.streamCache.Clear()
	s.rawCache.Clear()
}

// Stats describes the orchestration core for the health endpoint
type Stats struct {
	Uptime           time.Duration     `json:"-"`
	UptimeSeconds    float64           `json:"uptime"`
	CacheSize        int               `json:"cache_size"`
	RateLimitClients int               `json:"rate_limit_clients"`
	APIKeyRequired   bool              `json:"api_key_required"`
	Jobs             *domain.JobStats  `json:"jobs"`
}

// Stats returns a point-in-time view of the core
func (s *Service) Stats() *Stats {
	uptime := time.Since(s.startedAt)
	return &Stats{
		Uptime:           uptime,
		UptimeSeconds:    uptime.Seconds(),
		CacheSize:        s.metaCache.Len() + s.formatsCache.Len() + s.streamCache.Len() + s.rawCache.Len(),
		RateLimitClients: s.limiter.ClientCount(),
		APIKeyRequired:   s.config.Auth.APIKey != "",
		Jobs:             s.registry.Stats(),
	}
}

func (s *Service) fetchPage(ctx context.Context, url string, opts domain.PageOptions, kind string) (*domain.PlaylistPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Extractor.ExtractTimeout)
	defer cancel()

	page, err := s.extractor.FetchPlaylist(ctx, url, opts)
	if err != nil {
		return nil, extractTimeout(err)
	}
	page.Kind = kind
	paginate(page, opts)
	return page, nil
}

// paginate slices the entries in place per the requested window
func paginate(page *domain.PlaylistPage, opts domain.PageOptions) {
	total := len(page.Entries)
	page.Total = total

	offset := 0
	if opts.Offset > 0 {
		offset = opts.Offset
	}
	limit := total
	if opts.Limit > 0 {
		limit = opts.Limit
	}

	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page.Offset = offset
	page.Limit = limit
	page.Entries = page.Entries[offset:end]
}

func rateLimited(clientID string) error {
	return domain.NewError(domain.KindRateLimited, "rate limit exceeded for client %s", clientID)
}

// extractTimeout marks a tripped extract deadline as a timeout failure so
// it does not surface as an internal error
func extractTimeout(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.KindTimeout, err)
	}
	return err
}

func (s *Service) pruneLoop() {
	ticker := time.NewTicker(s.config.RateLimit.Window)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.limiter.Prune()
		}
	}
}

func streamKeySuffix(opts domain.StreamOptions) string {
	return string(opts.Mode) + ":" + opts.FormatID + ":" + opts.AudioFormatID + ":" +
		opts.VideoFormatID + ":" + opts.PreferredExt + ":" + strconv.Itoa(opts.MaxHeight)
}
