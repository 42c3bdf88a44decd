package config

import "time"

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values of cfg with defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyCacheDefaults(&cfg.Cache)
	applyFetchDefaults(&cfg.Fetch)
	applyFFmpegDefaults(&cfg.FFmpeg)

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:8080"
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "cli"
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 64 * 1024
	}
	if cfg.SpillThreshold == 0 {
		cfg.SpillThreshold = 32 * 1024 * 1024
	}
	if cfg.MaxResources == 0 {
		cfg.MaxResources = 16
	}
	if cfg.ProvisionalSize == 0 {
		cfg.ProvisionalSize = 4096
	}
}

func applyFetchDefaults(cfg *FetchConfig) {
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 10
	}
	if cfg.BackMargin == 0 {
		cfg.BackMargin = 8
	}
	if cfg.ForwardMargin == 0 {
		cfg.ForwardMargin = 16
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 64 * 1024
	}
	if cfg.MaxDataJump == 0 {
		cfg.MaxDataJump = 512 * 1024
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = 5 * time.Second
	}
}

func applyFFmpegDefaults(cfg *FFmpegConfig) {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if cfg.Format == "" {
		cfg.Format = "matroska"
	}
}
