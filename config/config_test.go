package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "cli", cfg.Logging.Format)
	assert.Equal(t, ByteSize(64*1024), cfg.Cache.PageSize)
	assert.Equal(t, 10, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, int64(8), cfg.Fetch.BackMargin)
	assert.Equal(t, int64(16), cfg.Fetch.ForwardMargin)
	assert.Equal(t, 5*time.Second, cfg.Fetch.JoinTimeout)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, *Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
cache:
  page_size: 128KiB
  spill_threshold: 1MB
  max_resources: 4
fetch:
  max_concurrent: 3
  join_timeout: 2s
  user_agent: test-agent
manifest:
  path: /srv/catalog.yaml
  watch: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ByteSize(128*1024), cfg.Cache.PageSize)
	assert.Equal(t, ByteSize(1000*1000), cfg.Cache.SpillThreshold)
	assert.Equal(t, 4, cfg.Cache.MaxResources)
	assert.Equal(t, 3, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Fetch.JoinTimeout)
	assert.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	assert.True(t, cfg.Manifest.Watch)

	// untouched keys keep their defaults
	assert.Equal(t, int64(16), cfg.Fetch.ForwardMargin)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "fetch:\n  max_concurrent: 3\n")
	t.Setenv("SMARTMEDIA_FETCH_MAX_CONCURRENT", "7")
	t.Setenv("SMARTMEDIA_CACHE_PAGE_SIZE", "16KiB")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Fetch.MaxConcurrent)
	assert.Equal(t, ByteSize(16*1024), cfg.Cache.PageSize)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string]string{
		"level":  "logging:\n  level: loud\n",
		"format": "logging:\n  format: xml\n",
		"margin": "fetch:\n  back_margin: -2\n",
		"watch":  "manifest:\n  watch: true\n",
		"size":   "cache:\n  page_size: lots\n",
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, data))
			assert.Error(t, err)
		})
	}
}

func TestLoadDisabledMargin(t *testing.T) {
	cfg, err := Load(writeConfig(t, "fetch:\n  back_margin: -1\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), cfg.Options(nil).BackMargin)
	assert.Equal(t, int64(16), cfg.Options(nil).ForwardMargin)
}

func TestByteSize(t *testing.T) {
	b, err := ParseByteSize("64KiB")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(65536), b)
	assert.Equal(t, "64 KiB", b.String())

	b, err = ParseByteSize("-1")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(-1), b)
}

func TestOptions(t *testing.T) {
	cfg := Default()
	cfg.Fetch.Preload = true
	cfg.Cache.SpillThreshold = -1

	opts := cfg.Options(nil)
	assert.Equal(t, int64(8), opts.BackMargin)
	assert.Equal(t, int64(16), opts.ForwardMargin)
	assert.Equal(t, 10, opts.MaxConcurrent)
	assert.Equal(t, 64*1024, opts.ChunkSize)
	assert.Equal(t, int64(-1), opts.SpillThreshold)
	assert.True(t, opts.Preload)

	f := cfg.NewFetcher(nil)
	assert.Equal(t, int64(512*1024), f.MaxDataJump)

	m := cfg.NewMuxer(nil)
	assert.Equal(t, "ffmpeg", m.Path)
	assert.Equal(t, "matroska", m.Format)
}
