// Package mux merges separate video and audio streams with ffmpeg.
package mux

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"

	"github.com/KarpelesLab/smartmedia"
)

// FFmpeg implements smartmedia.Muxer by running the ffmpeg binary. Streams
// are copied, not re-encoded.
type FFmpeg struct {
	// Path of the ffmpeg binary. Default is "ffmpeg" from $PATH
	Path string

	// Format is the output container. Default is "matroska", which can be
	// written without seeking back
	Format string

	// TmpDir is where inputs and output are staged, os.TempDir() by default.
	TmpDir string

	// Logger receives ffmpeg diagnostics. nil disables logging.
	Logger log.Interface
}

// New returns an FFmpeg using the binary at path.
func New(path string) *FFmpeg {
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) binary() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

func (f *FFmpeg) format() string {
	if f.Format == "" {
		return "matroska"
	}
	return f.Format
}

// Merge muxes the first video stream of video with the first audio stream
// of audio.
func (f *FFmpeg) Merge(ctx context.Context, video, audio []byte) ([]byte, error) {
	dir, err := os.MkdirTemp(f.TmpDir, "smartmedia-mux-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create work directory")
	}
	defer os.RemoveAll(dir)

	vpath := filepath.Join(dir, "video")
	apath := filepath.Join(dir, "audio")
	opath := filepath.Join(dir, "out")

	if err := os.WriteFile(vpath, video, 0o600); err != nil {
		return nil, errors.Wrap(err, "failed to stage video")
	}
	if err := os.WriteFile(apath, audio, 0o600); err != nil {
		return nil, errors.Wrap(err, "failed to stage audio")
	}

	args := []string{
		"-y", "-loglevel", "error",
		"-i", vpath,
		"-i", apath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c", "copy",
		"-f", f.format(),
		opath,
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.binary(), args...)
	cmd.Stderr = &stderr

	if f.Logger != nil {
		f.Logger.WithField("args", strings.Join(args, " ")).Debug("running ffmpeg")
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, errors.Wrapf(err, "ffmpeg failed: %s", msg)
		}
		return nil, errors.Wrap(err, "ffmpeg failed")
	}

	out, err := os.ReadFile(opath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ffmpeg output")
	}
	return out, nil
}

var _ smartmedia.Muxer = (*FFmpeg)(nil)
