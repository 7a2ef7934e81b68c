package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Metadata is the simplified per-video payload returned by metadata lookups
type Metadata struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Duration     float64 `json:"duration"`
	Thumbnail    string `json:"thumbnail"`
	Uploader     string `json:"uploader"`
	ViewCount    int64  `json:"view_count"`
	WebpageURL   string `json:"webpage_url"`
	Availability string `json:"availability"`
}

// Format describes one downloadable format reported by the extraction tool
type Format struct {
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

// FormatList is the payload of a formats lookup
type FormatList struct {
	Formats           []Format               `json:"formats"`
	Subtitles         map[string]interface{} `json:"subtitles"`
	AutomaticCaptions map[string]interface{} `json:"automatic_captions"`
}

// StreamURL is the short-lived payload of a stream resolution.
// Callers must treat it as advisory and re-resolve near playback time.
type StreamURL struct {
	AudioURL      string `json:"audio_url,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
	FormatID      string `json:"format_id,omitempty"`
	AudioFormatID string `json:"audio_format_id,omitempty"`
}

// PlaylistEntry is one simplified entry of a playlist or library listing
type PlaylistEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	WebpageURL string  `json:"webpage_url"`
}

// PlaylistPage is a paginated slice of a playlist or library listing
type PlaylistPage struct {
	ID      string          `json:"id,omitempty"`
	Title   string          `json:"title,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Total   int             `json:"total"`
	Offset  int             `json:"offset"`
	Limit   int             `json:"limit"`
	Entries []PlaylistEntry `json:"entries"`
}

// LookupOptions carries the optional fields of metadata/formats lookups
type LookupOptions struct {
	Cookies string `json:"cookies,omitempty"`
}

// StreamMode selects which stream URLs a stream resolution returns
type StreamMode string

const (
	StreamModeAudio StreamMode = "audio"
	StreamModeAV    StreamMode = "av"
)

// StreamOptions carries the optional fields of a stream resolution
type StreamOptions struct {
	Mode          StreamMode `json:"mode,omitempty"`
	Cookies       string     `json:"cookies,omitempty"`
	FormatID      string     `json:"format_id,omitempty"`
	AudioFormatID string     `json:"audio_format_id,omitempty"`
	VideoFormatID string     `json:"video_format_id,omitempty"`
	MaxHeight     int        `json:"max_height,omitempty"`
	PreferredExt  string     `json:"preferred_ext,omitempty"`
}

// PageOptions carries pagination for playlist and library listings
type PageOptions struct {
	Cookies string `json:"cookies,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ValidateURL rejects anything that is not an absolute http(s) URL
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewError(KindValidation, "invalid url: %q", raw)
	}
	return nil
}

// Validate checks stream options once at the facade boundary
func (o *StreamOptions) Validate() error {
	if o.Mode == "" {
		o.Mode = StreamModeAudio
	}
	if o.Mode != StreamModeAudio && o.Mode != StreamModeAV {
		return NewError(KindValidation, "mode must be %q or %q", StreamModeAudio, StreamModeAV)
	}
	if o.MaxHeight < 0 {
		return NewError(KindValidation, "max_height cannot be negative")
	}
	return nil
}

// Validate checks a download request once at the facade boundary
func (r *DownloadRequest) Validate() error {
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	if r.MaxHeight < 0 {
		return NewError(KindValidation, "max_height cannot be negative")
	}
	return nil
}

// LibraryURL maps a library kind to the upstream listing URL
func LibraryURL(kind string) (string, error) {
	switch kind {
	case "liked":
		return "https://www.youtube.com/playlist?list=LL", nil
	case "watchlater":
		return "https://www.youtube.com/playlist?list=WL", nil
	case "playlists":
		return "https://www.youtube.com/feed/playlists", nil
	}
	return "", NewError(KindValidation, "unknown library kind: %q", kind)
}

// CacheKey builds the normalized cache key for a lookup. Cookies take part
// in the key so authenticated and anonymous lookups never share entries.
func CacheKey(rawURL, cookies, suffix string) string {
	h := md5.New()
	h.Write([]byte(rawURL))
	if cookies != "" {
		h.Write([]byte(cookies))
	}
	key := fmt.Sprintf("cache:%s", hex.EncodeToString(h.Sum(nil)))
	if suffix != "" {
		key += ":" + suffix
	}
	return key
}

// IsHLSFormat reports whether a format is HLS-delivered. HLS variants are
// deprioritised when picking stream URLs because they are playlists, not
// direct media.
func IsHLSFormat(f Format) bool {
	protocol := strings.ToLower(f.Protocol)
	return strings.Contains(protocol, "m3u8") ||
		strings.Contains(protocol, "hls") ||
		strings.EqualFold(f.Ext, "m3u8") ||
		strings.Contains(strings.ToLower(f.URL), "m3u8")
}

// FilterFormats applies max-height and extension constraints
func FilterFormats(formats []Format, maxHeight int, preferredExt string) []Format {
	out := formats
	if maxHeight > 0 {
		filtered := make([]Format, 0, len(out))
		for _, f := range out {
			if f.Height <= maxHeight {
				filtered = append(filtered, f)
			}
		}
		out = filtered
	}
	if preferredExt != "" {
		filtered := make([]Format, 0, len(out))
		for _, f := range out {
			if strings.EqualFold(f.Ext, preferredExt) {
				filtered = append(filtered, f)
			}
		}
		out = filtered
	}
	return out
}

// FindFormatByID returns the format with the given id, or nil
func FindFormatByID(formats []Format, id string) *Format {
	if id == "" {
		return nil
	}
	for i := range formats {
		if formats[i].FormatID == id {
			return &formats[i]
		}
	}
	return nil
}

// PickBestAudio returns the highest-bitrate audio-only format, preferring
// non-HLS candidates
func PickBestAudio(formats []Format) *Format {
	candidates := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f.VCodec == "none" && f.ACodec != "none" {
			candidates = append(candidates, f)
		}
	}
	return pickBest(candidates, func(a, b Format) bool {
		if a.ABR != b.ABR {
			return a.ABR > b.ABR
		}
		return a.TBR > b.TBR
	})
}

// PickBestAV returns the best muxed audio+video format, preferring non-HLS
// candidates
func PickBestAV(formats []Format) *Format {
	candidates := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f.VCodec != "none" && f.ACodec != "none" {
			candidates = append(candidates, f)
		}
	}
	return pickBest(candidates, func(a, b Format) bool {
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.TBR > b.TBR
	})
}

func pickBest(candidates []Format, better func(a, b Format) bool) *Format {
	if len(candidates) == 0 {
		return nil
	}
	nonHLS := make([]Format, 0, len(candidates))
	for _, f := range candidates {
		if !IsHLSFormat(f) {
			nonHLS = append(nonHLS, f)
		}
	}
	if len(nonHLS) > 0 {
		candidates = nonHLS
	}
	best := candidates[0]
	for _, f := range candidates[1:] {
		if better(f, best) {
			best = f
		}
	}
	return &best
}
