package app

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/yourusername/velocity-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.velocity")
		v.AddConfigPath("/etc/velocity")
	}

	v.SetEnvPrefix("VELOCITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so every
	// key must be registered for VELOCITY_* overrides to apply without a
	// config file.
	registerDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file found, defaults plus environment apply.
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func registerDefaults(v *viper.Viper, config *domain.Config) {
	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)
	v.SetDefault("auth.api_key", config.Auth.APIKey)
	v.SetDefault("cache.ttl", config.Cache.TTL)
	v.SetDefault("cache.stream_ttl", config.Cache.StreamTTL)
	v.SetDefault("cache.sweep_interval", config.Cache.SweepInterval)
	v.SetDefault("rate_limit.quota", config.RateLimit.Quota)
	v.SetDefault("rate_limit.window", config.RateLimit.Window)
	v.SetDefault("worker.concurrency", config.Worker.Concurrency)
	v.SetDefault("worker.queue_capacity", config.Worker.QueueCapacity)
	v.SetDefault("worker.download_timeout", config.Worker.DownloadTimeout)
	v.SetDefault("extractor.ytdlp_binary", config.Extractor.YTDLPBinary)
	v.SetDefault("extractor.ffmpeg_binary", config.Extractor.FFmpegBinary)
	v.SetDefault("extractor.download_dir", config.Extractor.DownloadDir)
	v.SetDefault("extractor.extract_timeout", config.Extractor.ExtractTimeout)
	v.SetDefault("extractor.cancel_grace", config.Extractor.CancelGrace)
	v.SetDefault("extractor.database_path", config.Extractor.DatabasePath)
	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("logging.output_path", config.Logging.OutputPath)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Cache.TTL < 0 || config.Cache.StreamTTL < 0 {
		return fmt.Errorf("cache ttl cannot be negative")
	}

	if config.RateLimit.Quota < 1 {
		return fmt.Errorf("rate limit quota must be at least 1")
	}

	if config.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}

	if config.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be at least 1")
	}

	if config.Worker.QueueCapacity < 1 {
		return fmt.Errorf("worker queue capacity must be at least 1")
	}

	if config.Worker.DownloadTimeout <= 0 {
		return fmt.Errorf("download timeout must be positive")
	}

	if config.Extractor.ExtractTimeout <= 0 {
		return fmt.Errorf("extract timeout must be positive")
	}

	if config.Extractor.DownloadDir == "" {
		return fmt.Errorf("download directory not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}
