package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/velocity-go/internal/domain"
)

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		want     float64
		wantOK   bool
	}{
		{"typical", "[download]  45.2% of 10.00MiB at 1.00MiB/s ETA 00:05", 0.452, true},
		{"integer percent", "[download] 100% of 10.00MiB in 00:10", 1.0, true},
		{"start", "[download]   0.0% of 10.00MiB at Unknown speed", 0.0, true},
		{"destination line", "[download] Destination: video.mp4", 0, false},
		{"merger line", "[Merger] Merging formats into \"out.mp4\"", 0, false},
		{"unrelated", "[info] Downloading subtitles", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgressLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestClassifyExtractionError(t *testing.T) {
	tests := []struct {
		name    string
		msg     string
		subkind domain.ErrorSubkind
	}{
		{"sign in", "Sign in to confirm you're not a bot", domain.SubkindAuthRequired},
		{"cookies", "Use --cookies for the authentication", domain.SubkindAuthRequired},
		{"geo", "The uploader has not made this video available in your country", domain.SubkindGeoRestricted},
		{"age", "Sign in to confirm your age", domain.SubkindAuthRequired},
		{"format", "Requested format is not available", domain.SubkindUnsupported},
		{"network", "Unable to download webpage: connection reset", domain.SubkindNetwork},
		{"throttled", "HTTP Error 429: Too Many Requests", domain.SubkindNetwork},
		{"unknown", "something new and strange", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyExtractionError(tt.msg)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindExternal))

			de, ok := err.(*domain.Error)
			require.True(t, ok)
			assert.Equal(t, tt.subkind, de.Subkind)
		})
	}
}

func TestFormatSelector(t *testing.T) {
	assert.Equal(t, "137", formatSelector(domain.DownloadRequest{FormatID: "137"}, "best"))
	assert.Equal(t, "best", formatSelector(domain.DownloadRequest{}, "best"))
	assert.Equal(t, "best[height<=720]", formatSelector(domain.DownloadRequest{MaxHeight: 720}, "best"))
	assert.Equal(t, "bestvideo[height<=1080][ext=mp4]",
		formatSelector(domain.DownloadRequest{MaxHeight: 1080, PreferredExt: "mp4"}, "bestvideo"))
}

func TestLastErrorLine(t *testing.T) {
	stderr := "WARNING: unable to fetch thumbnails\nERROR: first problem\nsome noise\nERROR: final problem\n"
	assert.Equal(t, "final problem", lastErrorLine(stderr))
	assert.Equal(t, "", lastErrorLine("WARNING: only warnings here"))
}

func TestShellEscape(t *testing.T) {
	assert.Equal(t, "plain", ShellEscape("plain"))
	assert.Equal(t, "''", ShellEscape(""))
	assert.Equal(t, "'two words'", ShellEscape("two words"))
	assert.Equal(t, `'it'"'"'s'`, ShellEscape("it's"))
}

func TestShellEscapeCommand(t *testing.T) {
	got := ShellEscapeCommand("yt-dlp", "-f", "best", "https://example.com/watch?v=x")
	assert.Equal(t, "yt-dlp -f best 'https://example.com/watch?v=x'", got)
}
