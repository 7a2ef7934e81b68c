package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// AuthConfig contains API-key configuration. An empty key disables auth.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// CacheConfig contains TTL cache configuration.
// StreamTTL is separate from TTL because upstream stream URLs expire
// quickly and are only briefly reusable. A zero StreamTTL disables
// stream caching entirely.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	StreamTTL     time.Duration `mapstructure:"stream_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// RateLimitConfig contains admission gate configuration
type RateLimitConfig struct {
	Quota  int           `mapstructure:"quota"`
	Window time.Duration `mapstructure:"window"`
}

// WorkerConfig contains worker pool configuration
type WorkerConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// ExtractorConfig contains external tool configuration
type ExtractorConfig struct {
	YTDLPBinary    string        `mapstructure:"ytdlp_binary"`
	FFmpegBinary   string        `mapstructure:"ffmpeg_binary"`
	DownloadDir    string        `mapstructure:"download_dir"`
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	CancelGrace    time.Duration `mapstructure:"cancel_grace"`
	DatabasePath   string        `mapstructure:"database_path"`
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Auth: AuthConfig{
			APIKey: "",
		},
		Cache: CacheConfig{
			TTL:           300 * time.Second,
			StreamTTL:     30 * time.Second,
			SweepInterval: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Quota:  60,
			Window: 60 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:     2,
			QueueCapacity:   128,
			DownloadTimeout: time.Hour,
		},
		Extractor: ExtractorConfig{
			YTDLPBinary:    "yt-dlp",
			FFmpegBinary:   "ffmpeg",
			DownloadDir:    "downloads",
			ExtractTimeout: 60 * time.Second,
			CancelGrace:    5 * time.Second,
			DatabasePath:   "velocity.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
