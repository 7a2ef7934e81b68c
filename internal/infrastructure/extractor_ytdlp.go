package infrastructure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/velocity-go/internal/domain"
)

var progressRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

// YTDLPExtractor drives the yt-dlp binary for lookups and downloads and
// ffmpeg for explicit merges. Every invocation honours context
// cancellation: the process receives an interrupt on cancel and is
// hard-killed after the configured grace period if it does not exit.
type YTDLPExtractor struct {
	config *domain.ExtractorConfig
	logger *zap.Logger
}

// NewYTDLPExtractor creates a yt-dlp backed extractor
func NewYTDLPExtractor(config *domain.ExtractorConfig, logger *zap.Logger) *YTDLPExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPExtractor{config: config, logger: logger}
}

// infoJSON mirrors the subset of yt-dlp's --dump-json output we consume
type infoJSON struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	Duration          float64                `json:"duration"`
	Thumbnail         string                 `json:"thumbnail"`
	Uploader          string                 `json:"uploader"`
	ViewCount         int64                  `json:"view_count"`
	WebpageURL        string                 `json:"webpage_url"`
	Availability      string                 `json:"availability"`
	Formats           []formatJSON           `json:"formats"`
	Subtitles         map[string]interface{} `json:"subtitles"`
	AutomaticCaptions map[string]interface{} `json:"automatic_captions"`
	Entries           []infoJSON             `json:"entries"`
}

type formatJSON struct {
	FormatID string  `json:"format_id"`
	Format   string  `json:"format"`
	Ext      string  `json:"ext"`
	Protocol string  `json:"protocol"`
	ACodec   string  `json:"acodec"`
	VCodec   string  `json:"vcodec"`
	Height   int     `json:"height"`
	TBR      float64 `json:"tbr"`
	ABR      float64 `json:"abr"`
	URL      string  `json:"url"`
}

func toDomainFormat(f formatJSON) domain.Format {
	return domain.Format{
		FormatID: f.FormatID,
		Format:   f.Format,
		Ext:      f.Ext,
		Protocol: f.Protocol,
		ACodec:   f.ACodec,
		VCodec:   f.VCodec,
		Height:   f.Height,
		TBR:      f.TBR,
		ABR:      f.ABR,
		URL:      f.URL,
	}
}

// FetchMetadata resolves simplified metadata for a single video
func (e *YTDLPExtractor) FetchMetadata(ctx context.Context, url string, opts domain.LookupOptions) (*domain.Metadata, error) {
	info, err := e.extract(ctx, url, opts.Cookies)
	if err != nil {
		return nil, err
	}
	return &domain.Metadata{
		ID:           info.ID,
		Title:        info.Title,
		Duration:     info.Duration,
		Thumbnail:    info.Thumbnail,
		Uploader:     info.Uploader,
		ViewCount:    info.ViewCount,
		WebpageURL:   info.WebpageURL,
		Availability: info.Availability,
	}, nil
}

// FetchFormats resolves the available format list for a single video
func (e *YTDLPExtractor) FetchFormats(ctx context.Context, url string, opts domain.LookupOptions) (*domain.FormatList, error) {
	info, err := e.extract(ctx, url, opts.Cookies)
	if err != nil {
		return nil, err
	}
	list := &domain.FormatList{
		Formats:           make([]domain.Format, 0, len(info.Formats)),
		Subtitles:         info.Subtitles,
		AutomaticCaptions: info.AutomaticCaptions,
	}
	for _, f := range info.Formats {
		list.Formats = append(list.Formats, toDomainFormat(f))
	}
	return list, nil
}

// FetchRaw returns the unprocessed extraction-tool payload for a video
func (e *YTDLPExtractor) FetchRaw(ctx context.Context, url string, opts domain.LookupOptions) (map[string]interface{}, error) {
	out, err := e.extractBytes(ctx, url, opts.Cookies)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, domain.NewExternalError("", fmt.Errorf("malformed extractor output: %w", err))
	}
	return raw, nil
}

// ResolveStream resolves short-lived direct stream URLs per the options
func (e *YTDLPExtractor) ResolveStream(ctx context.Context, url string, opts domain.StreamOptions) (*domain.StreamURL, error) {
	list, err := e.FetchFormats(ctx, url, domain.LookupOptions{Cookies: opts.Cookies})
	if err != nil {
		return nil, err
	}

	formats := domain.FilterFormats(list.Formats, opts.MaxHeight, opts.PreferredExt)

	// An explicit format id wins over any picking logic.
	if opts.FormatID != "" {
		chosen := domain.FindFormatByID(formats, opts.FormatID)
		if chosen == nil {
			return nil, domain.NewError(domain.KindNotFound, "format not found: %s", opts.FormatID)
		}
		return &domain.StreamURL{
			AudioURL: chosen.URL,
			VideoURL: chosen.URL,
			FormatID: chosen.FormatID,
		}, nil
	}

	audio := domain.FindFormatByID(formats, opts.AudioFormatID)
	if audio == nil {
		audio = domain.PickBestAudio(formats)
	}
	av := domain.FindFormatByID(formats, opts.VideoFormatID)
	if av == nil {
		av = domain.PickBestAV(formats)
	}

	stream := &domain.StreamURL{}
	if audio != nil {
		stream.AudioURL = audio.URL
		stream.AudioFormatID = audio.FormatID
	}
	if opts.Mode == domain.StreamModeAV && av != nil {
		stream.VideoURL = av.URL
		stream.FormatID = av.FormatID
	}
	return stream, nil
}

// FetchPlaylist resolves a playlist or library listing
func (e *YTDLPExtractor) FetchPlaylist(ctx context.Context, url string, opts domain.PageOptions) (*domain.PlaylistPage, error) {
	info, err := e.extract(ctx, url, opts.Cookies, "--flat-playlist")
	if err != nil {
		return nil, err
	}

	page := &domain.PlaylistPage{
		ID:      info.ID,
		Title:   info.Title,
		Entries: make([]domain.PlaylistEntry, 0, len(info.Entries)),
	}
	for _, entry := range info.Entries {
		page.Entries = append(page.Entries, domain.PlaylistEntry{
			ID:         entry.ID,
			Title:      entry.Title,
			Duration:   entry.Duration,
			Thumbnail:  entry.Thumbnail,
			WebpageURL: entry.WebpageURL,
		})
	}
	return page, nil
}

// Download fetches media per the request. With Merge requested, video and
// audio streams are fetched separately and handed back for an explicit
// ffmpeg merge; otherwise a single muxed download is performed. Partial
// output is removed on every failure path, including cancellation.
func (e *YTDLPExtractor) Download(ctx context.Context, req domain.DownloadRequest, outputDir string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, domain.WrapError(domain.KindInternal, fmt.Errorf("create output dir: %w", err))
	}
	if progress == nil {
		progress = func(float64) {}
	}

	base := uuid.New().String()

	if req.Merge {
		return e.downloadSplit(ctx, req, outputDir, base, progress)
	}

	selector := formatSelector(req, "best")
	path, err := e.runDownload(ctx, req.URL, req.Cookies, selector, filepath.Join(outputDir, base), progress)
	if err != nil {
		return nil, err
	}
	size := fileSize(path)
	return &domain.DownloadResult{FilePath: path, FileSize: size}, nil
}

// Merge muxes separate audio and video files via ffmpeg stream copy
func (e *YTDLPExtractor) Merge(ctx context.Context, videoPath, audioPath, container, outputPath string) (*domain.MergeResult, error) {
	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		outputPath,
	}

	cmd := e.command(ctx, e.config.FFmpegBinary, args...)
	e.logger.Debug("Running merge", zap.String("cmd", ShellEscapeCommand(e.config.FFmpegBinary, args...)))

	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(outputPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewExternalError("", fmt.Errorf("ffmpeg: %s", strings.TrimSpace(string(out))))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return nil, domain.NewExternalError("", fmt.Errorf("merge produced empty output"))
	}
	return &domain.MergeResult{FilePath: outputPath, FileSize: info.Size()}, nil
}

// downloadSplit fetches the video and audio streams as separate files.
// The video download reports the first 70% of progress, the audio the
// rest; split sizes are not known up front so the weighting is fixed.
func (e *YTDLPExtractor) downloadSplit(ctx context.Context, req domain.DownloadRequest, outputDir, base string, progress domain.ProgressFunc) (*domain.DownloadResult, error) {
	videoSelector := req.FormatID
	if videoSelector == "" {
		videoSelector = formatSelector(req, "bestvideo")
	}
	audioSelector := req.AudioFormatID
	if audioSelector == "" {
		audioSelector = "bestaudio"
	}

	videoPath, err := e.runDownload(ctx, req.URL, req.Cookies, videoSelector,
		filepath.Join(outputDir, "v_"+base),
		func(f float64) { progress(f * 0.7) })
	if err != nil {
		return nil, err
	}

	audioPath, err := e.runDownload(ctx, req.URL, req.Cookies, audioSelector,
		filepath.Join(outputDir, "a_"+base),
		func(f float64) { progress(0.7 + f*0.3) })
	if err != nil {
		os.Remove(videoPath)
		return nil, err
	}

	return &domain.DownloadResult{
		VideoPath: videoPath,
		AudioPath: audioPath,
		NeedMerge: true,
	}, nil
}

// runDownload executes one yt-dlp download and returns the produced file
func (e *YTDLPExtractor) runDownload(ctx context.Context, url, cookies, selector, outputBase string, progress domain.ProgressFunc) (string, error) {
	args := []string{
		"--no-warnings",
		"--newline",
		"--progress",
		"--no-playlist",
		"-f", selector,
		"-o", outputBase + ".%(ext)s",
	}

	cookiePath, cleanup, err := e.writeCookieFile(cookies)
	if err != nil {
		return "", err
	}
	defer cleanup()
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, url)

	cmd := e.command(ctx, e.config.YTDLPBinary, args...)
	e.logger.Debug("Running download", zap.String("cmd", ShellEscapeCommand(e.config.YTDLPBinary, args...)))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", domain.WrapError(domain.KindInternal, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", domain.WrapError(domain.KindInternal, fmt.Errorf("start %s: %w", e.config.YTDLPBinary, err))
	}

	var lastError string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		if pct, ok := ParseProgressLine(line); ok {
			progress(pct)
		}
		if strings.HasPrefix(line, "ERROR:") {
			lastError = strings.TrimPrefix(line, "ERROR: ")
		}
	}

	if err := cmd.Wait(); err != nil {
		removeByBase(outputBase)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if lastError != "" {
			return "", ClassifyExtractionError(lastError)
		}
		return "", domain.NewExternalError("", fmt.Errorf("%s: %w", e.config.YTDLPBinary, err))
	}

	path, err := findByBase(outputBase)
	if err != nil {
		return "", domain.NewExternalError("", err)
	}
	return path, nil
}

// extract runs yt-dlp --dump-single-json without downloading
func (e *YTDLPExtractor) extract(ctx context.Context, url, cookies string, extraArgs ...string) (*infoJSON, error) {
	out, err := e.extractBytes(ctx, url, cookies, extraArgs...)
	if err != nil {
		return nil, err
	}
	var info infoJSON
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, domain.NewExternalError("", fmt.Errorf("malformed extractor output: %w", err))
	}
	return &info, nil
}

func (e *YTDLPExtractor) extractBytes(ctx context.Context, url, cookies string, extraArgs ...string) ([]byte, error) {
	args := []string{"--dump-single-json", "--no-warnings", "--skip-download"}
	args = append(args, extraArgs...)

	cookiePath, cleanup, err := e.writeCookieFile(cookies)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if cookiePath != "" {
		args = append(args, "--cookies", cookiePath)
	}
	args = append(args, url)

	cmd := e.command(ctx, e.config.YTDLPBinary, args...)
	e.logger.Debug("Running extract", zap.String("cmd", ShellEscapeCommand(e.config.YTDLPBinary, args...)))

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := lastErrorLine(stderr.String()); msg != "" {
			return nil, ClassifyExtractionError(msg)
		}
		return nil, domain.NewExternalError("", fmt.Errorf("%s: %w", e.config.YTDLPBinary, err))
	}
	return out, nil
}

// command builds an exec.Cmd whose process is interrupted on context
// cancellation and killed after the grace period if it lingers
func (e *YTDLPExtractor) command(ctx context.Context, binary string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.config.CancelGrace
	return cmd
}

// writeCookieFile writes the cookie payload to a temp file for --cookies.
// The returned cleanup always removes it.
func (e *YTDLPExtractor) writeCookieFile(cookies string) (string, func(), error) {
	if cookies == "" {
		return "", func() {}, nil
	}
	f, err := os.CreateTemp("", "velocity-cookies-*.txt")
	if err != nil {
		return "", func() {}, domain.WrapError(domain.KindInternal, err)
	}
	if _, err := f.WriteString(cookies); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", func() {}, domain.WrapError(domain.KindInternal, err)
	}
	f.Close()
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

// ParseProgressLine extracts the completion fraction from a yt-dlp
// progress line
func ParseProgressLine(line string) (float64, bool) {
	matches := progressRe.FindStringSubmatch(line)
	if len(matches) < 2 {
		return 0, false
	}
	pct, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, false
	}
	return pct / 100.0, true
}

// ClassifyExtractionError maps a yt-dlp error message to the structured
// taxonomy
func ClassifyExtractionError(msg string) error {
	lower := strings.ToLower(msg)
	base := fmt.Errorf("%s", msg)
	switch {
	case strings.Contains(lower, "sign in") ||
		strings.Contains(lower, "login required") ||
		strings.Contains(lower, "cookies") ||
		strings.Contains(lower, "authentication"):
		return domain.NewExternalError(domain.SubkindAuthRequired, base)
	case strings.Contains(lower, "available in your country") ||
		strings.Contains(lower, "geo restricted") ||
		strings.Contains(lower, "geo-restricted") ||
		strings.Contains(lower, "age-restricted"):
		return domain.NewExternalError(domain.SubkindGeoRestricted, base)
	case strings.Contains(lower, "requested format") ||
		strings.Contains(lower, "no video formats") ||
		strings.Contains(lower, "unsupported"):
		return domain.NewExternalError(domain.SubkindUnsupported, base)
	case strings.Contains(lower, "unable to download") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "429"):
		return domain.NewExternalError(domain.SubkindNetwork, base)
	}
	return domain.NewExternalError("", base)
}

// formatSelector builds a yt-dlp -f selector from request constraints
func formatSelector(req domain.DownloadRequest, fallback string) string {
	if req.FormatID != "" {
		return req.FormatID
	}
	selector := fallback
	if req.MaxHeight > 0 {
		selector += fmt.Sprintf("[height<=%d]", req.MaxHeight)
	}
	if req.PreferredExt != "" {
		selector += fmt.Sprintf("[ext=%s]", req.PreferredExt)
	}
	return selector
}

func lastErrorLine(stderr string) string {
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		if strings.HasPrefix(line, "ERROR:") {
			last = strings.TrimPrefix(line, "ERROR: ")
		}
	}
	return strings.TrimSpace(last)
}

// findByBase locates the single file yt-dlp produced for an output base
func findByBase(outputBase string) (string, error) {
	matches, err := filepath.Glob(outputBase + ".*")
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no output file produced")
	}
	return matches[0], nil
}

// removeByBase drops whatever yt-dlp produced for an output base,
// .part leftovers from an abort included
func removeByBase(outputBase string) {
	matches, _ := filepath.Glob(outputBase + ".*")
	for _, m := range matches {
		os.Remove(m)
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
