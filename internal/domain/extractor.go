package domain

import "context"

// ProgressFunc receives best-effort completion fractions in [0, 1]
type ProgressFunc func(fraction float64)

// DownloadResult is the outcome of a successful extraction download
type DownloadResult struct {
	FilePath  string
	FileSize  int64
	AudioPath string // set when audio and video were fetched separately
	VideoPath string
	NeedMerge bool
}

// MergeResult is the outcome of a successful merge step
type MergeResult struct {
	FilePath string
	FileSize int64
}

// Extractor is the boundary to the external media-extraction tool.
// Every call honours context cancellation; a cancelled context must abort
// the underlying process promptly.
type Extractor interface {
	// FetchMetadata resolves simplified metadata for a single video
	FetchMetadata(ctx context.Context, url string, opts LookupOptions) (*Metadata, error)

	// FetchFormats resolves the available format list for a single video
	FetchFormats(ctx context.Context, url string, opts LookupOptions) (*FormatList, error)

	// FetchRaw returns the unprocessed extraction-tool payload for a video
	FetchRaw(ctx context.Context, url string, opts LookupOptions) (map[string]interface{}, error)

	// ResolveStream resolves short-lived direct stream URLs
	ResolveStream(ctx context.Context, url string, opts StreamOptions) (*StreamURL, error)

	// FetchPlaylist resolves a playlist or library listing
	FetchPlaylist(ctx context.Context, url string, opts PageOptions) (*PlaylistPage, error)

	// Download fetches media per the request into outputDir, reporting
	// progress as it goes
	Download(ctx context.Context, req DownloadRequest, outputDir string, progress ProgressFunc) (*DownloadResult, error)

	// Merge muxes separate audio and video files into one container
	Merge(ctx context.Context, videoPath, audioPath, container, outputPath string) (*MergeResult, error)
}
