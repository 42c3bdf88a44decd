// Package config loads the settings of the smartmedia binary from a YAML
// file, SMARTMEDIA_* environment variables and defaults.
package config

import (
	"net/http"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/KarpelesLab/smartmedia"
	"github.com/KarpelesLab/smartmedia/httpsrc"
	"github.com/KarpelesLab/smartmedia/mux"
)

// ByteSize is a size in bytes that decodes from strings like "64KiB" or
// "32MB" as well as plain numbers.
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if neg, ok := strings.CutPrefix(s, "-"); ok {
		n, err := humanize.ParseBytes(neg)
		return -ByteSize(n), err
	}
	n, err := humanize.ParseBytes(s)
	return ByteSize(n), err
}

func (b ByteSize) String() string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// Config is the complete configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch" yaml:"fetch"`
	Manifest ManifestConfig `mapstructure:"manifest" yaml:"manifest"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error or fatal
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error fatal DEBUG INFO WARN ERROR FATAL" yaml:"level"`

	// Format is one of cli, text or json
	Format string `mapstructure:"format" validate:"required,oneof=cli text json" yaml:"format"`
}

// CacheConfig controls resources and their backing stores.
type CacheConfig struct {
	PageSize        ByteSize `mapstructure:"page_size" validate:"gt=0" yaml:"page_size"`
	SpillThreshold  ByteSize `mapstructure:"spill_threshold" yaml:"spill_threshold"` // negative disables spilling
	TmpDir          string   `mapstructure:"tmp_dir" yaml:"tmp_dir,omitempty"`
	MaxResources    int      `mapstructure:"max_resources" validate:"gte=1" yaml:"max_resources"`
	ProvisionalSize ByteSize `mapstructure:"provisional_size" validate:"gt=0" yaml:"provisional_size"`
}

// FetchConfig controls network transfers.
type FetchConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"gte=1" yaml:"max_concurrent"`
	BackMargin    int64         `mapstructure:"back_margin" validate:"gte=-1" yaml:"back_margin"` // -1 disables
	ForwardMargin int64         `mapstructure:"forward_margin" validate:"gte=-1" yaml:"forward_margin"` // -1 disables
	ChunkSize     ByteSize      `mapstructure:"chunk_size" validate:"gt=0" yaml:"chunk_size"`
	MaxDataJump   ByteSize      `mapstructure:"max_data_jump" validate:"gte=0" yaml:"max_data_jump"`
	JoinTimeout   time.Duration `mapstructure:"join_timeout" validate:"gt=0" yaml:"join_timeout"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gte=0" yaml:"timeout"` // 0 means none
	UserAgent     string        `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
	Preload       bool          `mapstructure:"preload" yaml:"preload"`
}

// ManifestConfig points to the media catalog. Without a path, media ids
// are treated as URLs.
type ManifestConfig struct {
	Path  string `mapstructure:"path" yaml:"path,omitempty"`
	Watch bool   `mapstructure:"watch" yaml:"watch"`
}

// FFmpegConfig configures the muxer.
type FFmpegConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SMARTMEDIA_*)
//  2. Configuration file
//  3. Default values
//
// An empty configPath, or one that does not exist, means defaults and
// environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	setDefaults(v)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "failed to read config file")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

// setupViper configures environment variables and the config file.
// Example: SMARTMEDIA_FETCH_MAX_CONCURRENT=4
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SMARTMEDIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// setDefaults registers every key so that environment variables are seen
// even when the file omits them.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("cache.page_size", int64(d.Cache.PageSize))
	v.SetDefault("cache.spill_threshold", int64(d.Cache.SpillThreshold))
	v.SetDefault("cache.tmp_dir", d.Cache.TmpDir)
	v.SetDefault("cache.max_resources", d.Cache.MaxResources)
	v.SetDefault("cache.provisional_size", int64(d.Cache.ProvisionalSize))

	v.SetDefault("fetch.max_concurrent", d.Fetch.MaxConcurrent)
	v.SetDefault("fetch.back_margin", d.Fetch.BackMargin)
	v.SetDefault("fetch.forward_margin", d.Fetch.ForwardMargin)
	v.SetDefault("fetch.chunk_size", int64(d.Fetch.ChunkSize))
	v.SetDefault("fetch.max_data_jump", int64(d.Fetch.MaxDataJump))
	v.SetDefault("fetch.join_timeout", d.Fetch.JoinTimeout.String())
	v.SetDefault("fetch.timeout", d.Fetch.Timeout.String())
	v.SetDefault("fetch.user_agent", d.Fetch.UserAgent)
	v.SetDefault("fetch.preload", d.Fetch.Preload)

	v.SetDefault("manifest.path", d.Manifest.Path)
	v.SetDefault("manifest.watch", d.Manifest.Watch)

	v.SetDefault("ffmpeg.path", d.FFmpeg.Path)
	v.SetDefault("ffmpeg.format", d.FFmpeg.Format)

	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// configDecodeHooks returns a combined decode hook for ByteSize and
// time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to ByteSize.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return ParseByteSize(v)
		case int:
			return ByteSize(v), nil
		case int64:
			return ByteSize(v), nil
		case uint64:
			return ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings like "30s" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// Validate checks cfg against its validate tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if cfg.Manifest.Watch && cfg.Manifest.Path == "" {
		return errors.New("manifest.watch requires manifest.path")
	}
	return nil
}

// Options returns engine options for cfg. Resolver, Fetcher and Muxer are
// left for the caller to set.
func (cfg *Config) Options(logger log.Interface) smartmedia.Options {
	return smartmedia.Options{
		Logger:          logger,
		BackMargin:      cfg.Fetch.BackMargin,
		ForwardMargin:   cfg.Fetch.ForwardMargin,
		MaxConcurrent:   cfg.Fetch.MaxConcurrent,
		MaxResources:    cfg.Cache.MaxResources,
		ChunkSize:       int(cfg.Fetch.ChunkSize),
		PageSize:        int64(cfg.Cache.PageSize),
		SpillThreshold:  int64(cfg.Cache.SpillThreshold),
		TmpDir:          cfg.Cache.TmpDir,
		ProvisionalSize: int64(cfg.Cache.ProvisionalSize),
		JoinTimeout:     cfg.Fetch.JoinTimeout,
		Preload:         cfg.Fetch.Preload,
	}
}

// NewFetcher returns an HTTP fetcher configured from cfg.
func (cfg *Config) NewFetcher(logger log.Interface) *httpsrc.Fetcher {
	f := httpsrc.NewFetcher()
	f.Client = &http.Client{Timeout: cfg.Fetch.Timeout}
	f.MaxDataJump = int64(cfg.Fetch.MaxDataJump)
	f.UserAgent = cfg.Fetch.UserAgent
	f.Logger = logger
	return f
}

// NewMuxer returns the ffmpeg muxer configured from cfg.
func (cfg *Config) NewMuxer(logger log.Interface) *mux.FFmpeg {
	m := mux.New(cfg.FFmpeg.Path)
	m.Format = cfg.FFmpeg.Format
	m.TmpDir = cfg.Cache.TmpDir
	m.Logger = logger
	return m
}
